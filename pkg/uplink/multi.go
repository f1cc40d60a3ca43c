package uplink

import (
	"context"
	"errors"
)

// Multi fans every event out to all sinks
type Multi []Sink

func (obj Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range obj {
		if err := sink.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (obj Multi) Close() error {
	var errs []error
	for _, sink := range obj {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
