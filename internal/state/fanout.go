package state

import (
	"context"

	"codeberg.org/mutker/whistlectl/internal/errors"
)

// Fanout publishes every update to all of its publishers. A failing publisher
// does not keep the others from receiving the update.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, name string, value Value) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, name, value); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.New().Wrap(ErrPublishFailed, errors.Join(errs...))
	}

	return nil
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.New().Wrap(ErrStorageClose, errors.Join(errs...))
	}

	return nil
}
