package cli

import "fmt"

// ExitError carries a process exit code alongside the message. Command
// RunE functions return it so main can exit with the right code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError builds an ExitError with a formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}
