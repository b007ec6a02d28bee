package store

import "github.com/pkg/errors"

const (
	MsgStorageFull = "Storage limit reached. Could not save the changes."
	MsgUnexpected  = "An unexpected error occurred while saving the changes."
	MsgCapReached  = "Upload limit reached. Delete an existing record before adding a new one."
	MsgDuplicate   = "A record with this id already exists."
	MsgInvalid     = "The changes could not be applied to the record."
)

var (
	ErrCapReached = errors.New("capacity reached")
	ErrDuplicate  = errors.New("duplicate id")
	ErrInvalid    = errors.New("invalid update")
)

// Result reports the outcome of a mutation. Expected failures (full storage, capacity reached)
// are values, not panics; Message is suitable for end users.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	cause   error
}

// Failure is the error form of an unsuccessful Result.
type Failure struct {
	Message string
	cause   error
}

func (f *Failure) Error() string {
	if f.cause == nil {
		return f.Message
	}
	return f.Message + ": " + f.cause.Error()
}

func (f *Failure) Unwrap() error { return f.cause }

// Is reports whether the failure was caused by target, e.g. ErrQuotaExceeded or ErrCapReached.
func (f *Failure) Is(target error) bool {
	return f.cause != nil && errors.Cause(f.cause) == target
}

func ok() Result { return Result{Success: true} }

func fail(cause error, msg string) Result {
	return Result{Message: msg, cause: cause}
}

// Failed builds an unsuccessful Result for a failure detected before the store was reached.
func Failed(cause error, msg string) Result { return fail(cause, msg) }

// Err returns nil on success, a *Failure otherwise.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return &Failure{Message: r.Message, cause: r.cause}
}

// Cause returns the underlying error of a failed Result.
func (r Result) Cause() error { return r.cause }

// WithMessage overrides the user facing message of a failed result.
func (r Result) WithMessage(msg string) Result {
	if !r.Success {
		r.Message = msg
	}
	return r
}
