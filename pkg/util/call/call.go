package call

import "errors"

// Call is a deferred error-returning function
type Call func() error

// Perform runs calls in order and stops on the first error
func Perform(calls ...Call) error {
	for _, call := range calls {
		if err := call(); err != nil {
			return err
		}
	}
	return nil
}

// PerformAll runs every call in order and joins the errors they return
func PerformAll(calls ...Call) error {
	var errs []error
	for _, call := range calls {
		if err := call(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithArg binds one argument to a call
func WithArg[Arg any](call func(Arg) error, arg Arg) Call {
	return func() error {
		return call(arg)
	}
}

// WithArgs binds two arguments to a call
func WithArgs[Arg1, Arg2 any](
	call func(Arg1, Arg2) error, arg1 Arg1, arg2 Arg2,
) Call {
	return func() error {
		return call(arg1, arg2)
	}
}
