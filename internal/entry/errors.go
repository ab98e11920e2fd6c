package entry

import "fmt"

// FormatError reports a malformed entry identifier or column.
type FormatError struct {
	Input     string
	Component string
	Reason    string
	Err       error
}

func (e *FormatError) Error() string {
	switch {
	case e.Component != "" && e.Err != nil:
		return fmt.Sprintf("entry: invalid %s in %q: %v", e.Component, e.Input, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("entry: invalid identifier %q: %s", e.Input, e.Reason)
	default:
		return fmt.Sprintf("entry: invalid identifier %q", e.Input)
	}
}

func (e *FormatError) Unwrap() error { return e.Err }
