package oai

import "encoding/xml"

// ProtocolError is a server-side <error> element inside a well-formed
// response. It is carried on the envelope and never conflated with a
// transport failure.
type ProtocolError struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

// Codes defined by the protocol (3.6 Error and Exception Conditions). The
// driver branches only on CodeBadResumptionToken; CodeNoRecordsMatch is
// handled like any other protocol error.
const (
	CodeBadResumptionToken = "badResumptionToken"
	CodeNoRecordsMatch     = "noRecordsMatch"
)

// Header is the record header transmitted in ListRecords responses.
type Header struct {
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	Sets       []string `xml:"setSpec"`
	Status     string   `xml:"status,attr"`
}

// Record is one <record> child of a ListRecords response. The metadata
// payload is kept verbatim; the driver never inspects it.
type Record struct {
	Header   Header `xml:"header"`
	Metadata struct {
		Verbatim string `xml:",innerxml"`
	} `xml:"metadata"`
	About struct {
		Verbatim string `xml:",innerxml"`
	} `xml:"about"`
}

// ResumptionToken is the pagination cursor of a list response.
type ResumptionToken struct {
	Value            string `xml:",chardata"`
	ExpirationDate   string `xml:"expirationDate,attr"`
	Cursor           string `xml:"cursor,attr"`
	CompleteListSize string `xml:"completeListSize,attr"`
}

// Identify is the repository self-description block.
type Identify struct {
	Name              string `xml:"repositoryName" json:"name"`
	BaseURL           string `xml:"baseURL" json:"url"`
	Version           string `xml:"protocolVersion" json:"version"`
	AdminEmail        string `xml:"adminEmail" json:"email"`
	EarliestDatestamp string `xml:"earliestDatestamp" json:"earliest"`
	DeletePolicy      string `xml:"deletedRecord" json:"delete"`
	Granularity       string `xml:"granularity" json:"granularity"`
}

// Set is one entry of a ListSets response.
type Set struct {
	Spec string `xml:"setSpec" json:"spec"`
	Name string `xml:"setName" json:"name"`
}

// Envelope is the parsed <OAI-PMH> response tree. Only the children the
// driver reads are modeled; everything else is dropped during decoding.
type Envelope struct {
	XMLName      xml.Name      `xml:"OAI-PMH"`
	ResponseDate string        `xml:"responseDate"`
	Error        ProtocolError `xml:"error"`
	Identify     Identify      `xml:"Identify"`
	ListRecords  struct {
		Records []Record        `xml:"record"`
		Token   ResumptionToken `xml:"resumptionToken"`
	} `xml:"ListRecords"`
	ListSets struct {
		Sets  []Set           `xml:"set"`
		Token ResumptionToken `xml:"resumptionToken"`
	} `xml:"ListSets"`
}

// HasError reports whether the server answered with a protocol error.
func (e *Envelope) HasError() bool {
	return e.Error.Code != ""
}
