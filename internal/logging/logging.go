package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"game-house/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	writerMu sync.RWMutex
	writer   io.Writer = os.Stdout
	closer   io.Closer
)

// Init configures the global zerolog logger. When cfg.File is set, output is
// duplicated into a file rotated at cfg.MaxMB.
func Init(cfg config.LogConfig) error {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	var base io.Writer = os.Stdout
	var fileCloser io.Closer
	if cfg.File != "" {
		fw, err := openRotatingFile(cfg)
		if err != nil {
			return err
		}
		base = io.MultiWriter(os.Stdout, fw)
		fileCloser = fw
	}

	output := base
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: base}
	}

	zerolog.SetGlobalLevel(level)
	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	logger := ctx.Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger

	writerMu.Lock()
	prev := closer
	writer = base
	closer = fileCloser
	writerMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// Writer is the raw output the global logger writes to, for loggers that do
// not go through zerolog.
func Writer() io.Writer {
	writerMu.RLock()
	defer writerMu.RUnlock()
	return writer
}

// Close releases the log file, if any.
func Close() error {
	writerMu.Lock()
	c := closer
	closer = nil
	writer = os.Stdout
	writerMu.Unlock()
	if c != nil {
		return c.Close()
	}
	return nil
}
