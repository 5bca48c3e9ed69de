package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogPath   = "./logs/mpmail.log"
	defaultMaxSizeMB = 100
	defaultMaxFiles  = 5
)

// FileConfig holds file output settings. Zero values select defaults.
type FileConfig struct {
	Path      string
	MaxSizeMB int
	MaxFiles  int
}

// NewFileWriter returns a size-rotated, gzip-compressing log file writer.
func NewFileWriter(cfg FileConfig) io.WriteCloser {
	if cfg.Path == "" {
		cfg.Path = defaultLogPath
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   true,
	}
}
