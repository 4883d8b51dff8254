package oai

// Granularity tokens as declared by Identify (3.3.1). "auto" defers to the
// server's declaration.
const (
	GranularityAuto   = "auto"
	GranularityDay    = "YYYY-MM-DD"
	GranularitySecond = "YYYY-MM-DDThh:mm:ssZ"
)

// dayLen is the length of a day-granularity datestamp.
const dayLen = len("2006-01-02")

// NormalizeGranularity maps a server-declared granularity onto one of the
// two protocol tokens. Anything unrecognized is treated as second-level.
func NormalizeGranularity(s string) string {
	if s == GranularityDay {
		return GranularityDay
	}
	return GranularitySecond
}

// TruncateToGranularity shortens a datestamp to day precision when the
// granularity is day-level. Second-level datestamps pass through untouched.
func TruncateToGranularity(date, granularity string) string {
	if granularity == GranularityDay && len(date) > dayLen {
		return date[:dayLen]
	}
	return date
}
