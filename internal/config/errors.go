package config

// Error reports an unreadable file, malformed YAML, or an invalid value.
type Error struct {
	// File is the config file path (empty for flag-only configs).
	File string

	// Field is the offending setting, if any.
	Field string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func invalid(field, message string) *Error {
	return &Error{Field: field, Message: message}
}
