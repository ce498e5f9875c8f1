package settings

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConfigureLogging sets level, format and output of the standard logrus
// logger. With a log file configured, entries go to stderr and to a rotating
// file.
func ConfigureLogging(c LogConfig) error {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	log.SetLevel(level)

	switch c.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Format)
	}

	if c.File == "" {
		log.SetOutput(os.Stderr)
		return nil
	}

	w := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB, // MB
		MaxBackups: c.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, w))

	return nil
}
