// Package oai implements the OAI-PMH 2.0 wire vocabulary: verbs, request
// URL construction, and the typed response envelope.
//
// The protocol is a stateless set of HTTP GET verbs; list verbs paginate
// through an opaque resumptionToken that is mutually exclusive with every
// other request parameter (3.5 Flow Control).
package oai

import (
	"errors"
	"fmt"
	"net/url"
)

// Verbs used by the harvesting driver.
const (
	VerbIdentify    = "Identify"
	VerbListSets    = "ListSets"
	VerbListRecords = "ListRecords"
)

// Parameter names for list requests.
const (
	ParamMetadataPrefix  = "metadataPrefix"
	ParamFrom            = "from"
	ParamUntil           = "until"
	ParamSet             = "set"
	ParamResumptionToken = "resumptionToken"
)

// DefaultPrefix should be supported by most endpoints.
const DefaultPrefix = "oai_dc"

var (
	ErrNoEndpoint = errors.New("oai: an endpoint is required")
	ErrBadVerb    = errors.New("oai: bad verb")

	// ErrExclusiveToken is returned when a resumptionToken is combined with
	// any other request parameter.
	ErrExclusiveToken = errors.New("oai: resumptionToken is an exclusive argument")
)

var knownVerbs = map[string]bool{
	VerbIdentify:    true,
	VerbListSets:    true,
	VerbListRecords: true,
}

// BuildURL assembles the request URL for a verb and its parameters. The
// verb is always sent as the `verb` query parameter; empty parameter values
// are dropped. A resumptionToken must be the only parameter.
func BuildURL(endpoint, verb string, params map[string]string) (string, error) {
	if endpoint == "" {
		return "", ErrNoEndpoint
	}
	if !knownVerbs[verb] {
		return "", fmt.Errorf("%w: %q", ErrBadVerb, verb)
	}
	if _, ok := params[ParamResumptionToken]; ok && len(params) > 1 {
		return "", ErrExclusiveToken
	}

	values := url.Values{}
	values.Add("verb", verb)
	for k, v := range params {
		if v != "" {
			values.Add(k, v)
		}
	}
	return fmt.Sprintf("%s?%s", endpoint, values.Encode()), nil
}
