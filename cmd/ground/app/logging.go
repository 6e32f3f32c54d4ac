package app

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// LogWriter returns the destination of the ground station log: stdout, plus a
// size-rotated file when one is configured.
func LogWriter(config LogFileConfig, stdout io.Writer) (io.Writer, io.Closer) {
	if config.Path == "" {
		return stdout, nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   config.Compress,
	}
	return io.MultiWriter(stdout, file), file
}
