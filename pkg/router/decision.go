package router

// Routing methods reported on a Decision.
const (
	MethodForced        = "forced"
	MethodClassified    = "classified"
	MethodRejected      = "rejected"
	MethodErrorFallback = "error_fallback"
)

// Decision captures how a request was routed. It is echoed back to the
// caller under "routing".
type Decision struct {
	Service         string  `json:"service,omitempty"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning,omitempty"`
	Method          string  `json:"method"`
	Fallback        bool    `json:"fallback"`
	FallbackReason  string  `json:"fallback_reason,omitempty"`
	ValidationError string  `json:"validation_error,omitempty"`
	Error           string  `json:"error,omitempty"`
	Cached          bool    `json:"cached,omitempty"`
}
