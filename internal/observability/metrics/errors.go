package metrics

import (
	"context"
	"errors"
)

// kinded is implemented by errors that carry their own metrics label.
type kinded interface {
	Kind() string
}

// ErrorType maps an error to a low-cardinality label.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "error"
}
