package health

import (
	"context"
	"fmt"
)

// Pinger adapts anything with a Ping method into a [Checker]. The resume
// store's connection pool satisfies this.
func Pinger(name string, p interface {
	Ping(ctx context.Context) error
}) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// NonEmpty reports ready once count returns a positive number. Used for the
// scenario store, which must hold at least one scenario before the service
// can run interviews.
func NonEmpty(name string, count func() int) Checker {
	return Checker{
		Name: name,
		Check: func(_ context.Context) error {
			if n := count(); n <= 0 {
				return fmt.Errorf("%s is empty", name)
			}
			return nil
		},
	}
}
