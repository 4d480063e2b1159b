package logging

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Settings struct {
	WithCaller bool   `yaml:"with_caller" mapstructure:"with-caller"`
	Level      string `yaml:"level" mapstructure:"level"`
	// Format is "text" or "json"
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file,omitempty" mapstructure:"file"`
	// Quiet drops stderr output, for when a TUI owns the terminal. File output
	// is kept.
	Quiet bool `yaml:"-" mapstructure:"-"`
}

// InitLogger configures the global zerolog logger.
func InitLogger(s *Settings) error {
	return initLogger(s, os.Stderr)
}

func initLogger(s *Settings, stderr io.Writer) error {
	level := zerolog.InfoLevel
	if s.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s.Level))
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", s.Level)
		}
		level = l
	}

	var writers []io.Writer
	if !s.Quiet {
		switch s.Format {
		case "text", "":
			writers = append(writers, zerolog.ConsoleWriter{
				Out:     stderr,
				NoColor: !isTerminal(stderr),
			})
		case "json":
			writers = append(writers, stderr)
		default:
			return errors.Errorf("invalid log format %q", s.Format)
		}
	}

	if s.File != "" {
		writers = append(writers, zerolog.ConsoleWriter{
			NoColor: true,
			Out: &lumberjack.Logger{
				Filename:   s.File,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			},
		})
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	logger := zerolog.New(w).With().Timestamp()
	if s.WithCaller {
		logger = logger.Caller()
	}
	log.Logger = logger.Logger()
	zerolog.SetGlobalLevel(level)

	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
