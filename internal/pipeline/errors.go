package pipeline

import (
	"fmt"
	"strings"
)

// IOError reports a failure to read or write a file the pipeline owns, such
// as the configuration or the object output.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ArgumentError reports command-line operands that could not be used.
type ArgumentError struct {
	Args   []string
	Reason string
	Err    error
}

func (e *ArgumentError) Error() string {
	msg := fmt.Sprintf("invalid arguments [%s]: %s", strings.Join(e.Args, " "), e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArgumentError) Unwrap() error { return e.Err }
