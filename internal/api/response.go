package api

// ErrorResponse is the body of every non-2xx gateway response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Upstream  int    `json:"upstreamStatus,omitempty"`
}
