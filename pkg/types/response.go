package types

type SuccessEnvelope struct {
	Data   any     `json:"data"`
	Notice *Notice `json:"notice,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error  APIError `json:"error"`
	Notice *Notice  `json:"notice,omitempty"`
}

// Notice carries the user-facing outcome of a cart or checkout operation.
// ItemTitle is set when the notice concerns a specific line item.
type Notice struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	ItemTitle string `json:"item_title,omitempty"`
}

const (
	NoticeSuccess = "success"
	NoticeError   = "error"
)
