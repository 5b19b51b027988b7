package apperrors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmptyDocument    = errors.New("nothing to embed")
	ErrUnsupportedImage = errors.New("unsupported or corrupt image")
	ErrSchemaMismatch   = errors.New("provider output does not match analysis schema")
)

// InputError marks a failure caused by the payload itself. Retrying the same
// payload cannot succeed, so consumers acknowledge it instead of redelivering.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return "input error: " + e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Input wraps err as an input error. A nil err stays nil.
func Input(err error) error {
	if err == nil {
		return nil
	}
	var ie *InputError
	if errors.As(err, &ie) {
		return err
	}
	return &InputError{Err: err}
}

// IsInput reports whether err (or anything it wraps) is an input error.
// Everything else is treated as a transient dependency failure.
func IsInput(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
