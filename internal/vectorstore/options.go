package vectorstore

import (
	"errors"

	"go.uber.org/zap"
)

// ErrCollectionNotFound is returned when the configured collection does not exist.
var ErrCollectionNotFound = errors.New("collection not found")

type options struct {
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*options)

// WithLogger sets a logger for store operations.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
