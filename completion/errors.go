package completion

import "fmt"

// SDKError is the base error type for all completion errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// TransportError means the request never produced an HTTP response: DNS,
// connection refused, TLS, timeout, or cancellation.
type TransportError struct{ SDKError }

// ProtocolError means a response arrived but was not the expected shape.
// StatusCode is zero when the status was 200 and the body failed to decode.
type ProtocolError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorType  string
}

func (e *ProtocolError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (status=%d)", e.Provider, e.SDKError.Error(), e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s", e.Provider, e.SDKError.Error())
}

// NoChoiceError means the response carried an empty choices list.
type NoChoiceError struct{ SDKError }

// NoInvocationError means the selected choice did not contain a tool call.
type NoInvocationError struct{ SDKError }

// ConfigurationError reports a client that cannot route a request.
type ConfigurationError struct{ SDKError }

// ErrorFromStatusCode builds the ProtocolError for a non-200 response.
func ErrorFromStatusCode(statusCode int, message, provider, errorType string) error {
	if message == "" {
		message = fmt.Sprintf("unexpected status %d", statusCode)
	}
	return &ProtocolError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorType:  errorType,
	}
}
