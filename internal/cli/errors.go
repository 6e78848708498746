package cli

import "errors"

var ErrUsage = errors.New("cli usage error")

// ErrProblems is returned after a completed run that skipped entities or
// failed to produce some files. The summary has already been printed.
var ErrProblems = errors.New("generation finished with problems")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}
