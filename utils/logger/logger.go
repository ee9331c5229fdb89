package logger

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kris-hansen/stepwise/utils/fileutil"
)

// Logger is the process-wide logger. It discards everything until InitLogger
// runs, so library code and tests stay quiet.
var Logger = zap.NewNop().Sugar()

// Config controls InitLogger.
type Config struct {
	Debug  bool   // debug level instead of info
	Format string // "json" or "human"
	File   string // optional extra output file
}

// DefaultConfig returns human readable, info level logging to stderr.
func DefaultConfig() Config {
	return Config{Format: "human"}
}

// InitLogger replaces Logger according to cfg.
func InitLogger(cfg Config) error {
	var zapConfig zap.Config
	if cfg.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.DisableStacktrace = true
	}

	// stdout carries command output, logs go to stderr.
	outputPaths := []string{"stderr"}
	if cfg.File != "" {
		path, err := fileutil.ExpandPath(cfg.File)
		if err != nil {
			return fmt.Errorf("failed to expand log file path: %w", err)
		}
		if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		outputPaths = append(outputPaths, path)
	}
	zapConfig.OutputPaths = outputPaths
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	if cfg.Debug {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	Logger = logger.Sugar()
	return nil
}

// WithFields returns a logger that adds fields to every entry.
func WithFields(fields map[string]interface{}) *zap.SugaredLogger {
	flat := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		flat = append(flat, k, v)
	}
	return Logger.With(flat...)
}

// Sync flushes buffered entries.
func Sync() error {
	return Logger.Sync()
}
