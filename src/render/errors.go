package render

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrFormatMismatch is returned, inside a ContractError, when a swap image
	// set rebuilt from its predecessor no longer agrees on colour or depth
	// format. Pipelines are compiled against a fixed format, so there is no
	// recovery.
	ErrFormatMismatch = errors.New("swap image format changed across recreation")

	ErrZeroExtent = errors.New("swap image set requested with a zero extent")
)

// ContractError is the panic value for API misuse: calls out of state order,
// a command buffer from another frame, broken count invariants. It marks a
// bug in the caller, never a runtime condition. The one returned rather than
// raised is a format change across recreation, which carries
// ErrFormatMismatch as Err.
type ContractError struct {
	Op  string
	Msg string
	Err error
}

func (e *ContractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("render: %s: %s", e.Op, e.Msg)
}

func (e *ContractError) Unwrap() error { return e.Err }

func assertf(cond bool, op, format string, args ...any) {
	if !cond {
		panic(errors.WithStack(&ContractError{Op: op, Msg: fmt.Sprintf(format, args...)}))
	}
}

// IsContractViolation reports whether err carries a ContractError.
func IsContractViolation(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}

// OrPanic runs the finalizers and panics when err is non-nil.
func OrPanic(err error, finalizers ...func()) {
	if err == nil {
		return
	}
	for _, fn := range finalizers {
		fn()
	}
	panic(err)
}

// CheckError turns a panic into an error. Use it deferred at a program
// boundary:
//
//	defer render.CheckError(&err)
func CheckError(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = e
			return
		}
		*err = errors.Errorf("%+v", v)
	}
}
