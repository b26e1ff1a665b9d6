package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// MergeResponse is the acknowledgement body of a merge_patients delivery.
// Updated is set on success, including when no rows matched.
type MergeResponse struct {
	OK      bool   `json:"ok"`
	Updated *int   `json:"updated,omitempty"`
	Error   string `json:"error,omitempty"`
}
