package kernel

// Error describes a kernel error. Errors are declared as package-level
// pointers to Error and compared by identity, so parsing code never has to
// allocate when it reports a failure.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface. The returned string is prefixed with
// the module name when one is set.
func (e *Error) Error() string {
	if e.Module == "" {
		return e.Message
	}

	return e.Module + ": " + e.Message
}

// Is reports whether target is the same sentinel as e. It allows wrapped
// kernel errors to be matched with errors.Is by hosted callers.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t == e
}
