package repository

import "github.com/okian/rks/pkg/logger"

// Option applies a configuration option to a Store.
type Option func(*Store)

// WithLogger sets the logger used to report degraded reads.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
