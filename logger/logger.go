package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-colorable"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fixerstudio/marketbrief/config"
)

// Setup configures log for cfg: text to stderr, plus rotated JSON lines in
// cfg.LogFile when set. Close the returned closer on exit.
func Setup(log *logrus.Logger, cfg *config.Config) (io.Closer, error) {
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	log.SetOutput(colorable.NewColorableStderr()) // For Windows
	log.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if cfg.LogFile == "" {
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}
	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     7, // days
		Compress:   true,
	}
	log.AddHook(&fileHook{out: file, formatter: &logrus.JSONFormatter{}})
	return file, nil
}

// fileHook copies every entry to out, whatever the logger output is.
type fileHook struct {
	out       io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.out.Write(line)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
