package protocol

// Error categories per the handling policy: validation and authorization
// denials, not-found lookups, and transient store failures. Only the
// initiating connection ever sees these.
const (
	CategoryValidation    = "validation"
	CategoryAuthorization = "authorization"
	CategoryNotFound      = "not_found"
	CategoryTransient     = "transient"
)

// ErrorPayload is delivered on the initiator's own connection as an
// EventError frame. State is guaranteed unchanged when one is reported.
type ErrorPayload struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

func NewError(code, category, message string) OutEvent {
	return OutEvent{Type: EventError, Data: ErrorPayload{Code: code, Category: category, Message: message}}
}
