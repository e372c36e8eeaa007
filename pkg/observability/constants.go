package observability

const (
	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.path"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response_size"
	AttrErrorType        = "error.type"
	AttrPolicy           = "policy"
	AttrOutcome          = "outcome"
	AttrReason           = "reason"

	SpanHTTPRequest = "http.request"

	DefaultServiceName  = "perch"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPort  = 9091
	DefaultMetricsPath  = "/metrics"
	DefaultSamplingRate = 1.0
)
