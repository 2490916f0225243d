package canopyerr

import "encoding/json"

// Envelope is the wire representation returned by every failing service
// endpoint: {code, message, hint}.
type Envelope struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// ToEnvelope converts err into the service API's error envelope. Errors
// that aren't *Error are classified as internal_error with the plain Go
// error text as the message.
func ToEnvelope(err error) Envelope {
	if err == nil {
		return Envelope{}
	}
	ce, ok := err.(*Error)
	if !ok {
		return Envelope{Code: CodeInternalError, Message: err.Error()}
	}
	return Envelope{Code: ce.Code, Message: ce.Message, Hint: ce.Hint}
}

// FormatJSON returns the JSON representation of the error envelope.
func FormatJSON(err error) ([]byte, error) {
	return json.Marshal(ToEnvelope(err))
}

// FormatForCLI formats an error for terminal display: message, then hint on
// an indented line, then the code for reference.
func FormatForCLI(err error) string {
	env := ToEnvelope(err)
	if env.Code == "" {
		return ""
	}
	out := "Error: " + env.Message + "\n"
	if env.Hint != "" {
		out += "  Hint: " + env.Hint + "\n"
	}
	out += "  Code: " + string(env.Code) + "\n"
	return out
}

// LogAttrs returns key-value pairs suitable for slog structured logging.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}
	ce, ok := err.(*Error)
	if !ok {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", string(ce.Code),
		"message", ce.Message,
		"category", string(categoryOf(ce.Code)),
	}
	if ce.Hint != "" {
		attrs = append(attrs, "hint", ce.Hint)
	}
	if ce.Cause != nil {
		attrs = append(attrs, "cause", ce.Cause.Error())
	}
	for k, v := range ce.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
