package changefeed

import (
	"context"
	"errors"
)

// Multi publishes every event to each of its publishers in order.
type Multi []Publisher

// Publish implements Publisher, joining the errors of every publisher.
func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
