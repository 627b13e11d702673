package logger

import (
	"go.uber.org/zap"
)

// New builds a production JSON logger at the given level. An empty
// verbosity means info.
func New(verbosity string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	return config.Build()
}

// Named returns the child logger of a component, or a no-op logger when
// log is nil.
func Named(log *zap.Logger, name string) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log.Named(name)
}
