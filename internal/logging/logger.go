// Package logging builds the zap loggers used by heaps, bucket heaps and the inspection tool.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config - Logger configuration
//   - Level is the minimum level (debug, info, warn, error), defaults to info
//   - Format is either json or console, defaults to json
//   - OutputFile is stdout, stderr or a file name to append to, defaults to stdout
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputFile string `yaml:"output_file"`
}

// New - Returns a new zap.Logger given the configuration, tagged with the component name
func New(config Config, component string) (logger *zap.Logger, err error) {
	logLevel := zap.NewAtomicLevel()
	if err = logLevel.UnmarshalText([]byte(config.Level)); err != nil || config.Level == "" {
		logLevel.SetLevel(zap.InfoLevel)
		err = nil
	}

	writeSyncer, err := getWriteSyncer(config.OutputFile)
	if err != nil {
		return
	}

	core := zapcore.NewCore(getEncoder(config.Format), writeSyncer, logLevel)

	logger = zap.New(core, zap.AddCaller()).
		WithOptions(zap.Fields(zap.String("component", component)))

	return
}

// OrNop - Returns logger, or a no-op logger if logger is nil
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

// getEncoder - Selects encoder given format
func getEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.ToLower(format) == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// getWriteSyncer - Selects output destination
func getWriteSyncer(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", outputFile, err)
		}
		return zapcore.AddSync(file), nil
	}
}
