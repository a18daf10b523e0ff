/*
Package logging builds the application logger.

PURPOSE:
  One zap constructor shared by the server, the settlement job, and
  tests. Debug mode switches to the human-readable development encoder
  and lowers the level.
*/
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a SugaredLogger. Production JSON output by default,
// console output with debug level when debug is set.
func New(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// NewNop returns a logger that discards everything. For tests.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
