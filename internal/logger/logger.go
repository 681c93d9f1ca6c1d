// Package logger wires zerolog to stdout and an optional size-rotated
// log file.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options controls log output. Empty Filename disables the file sink.
type Options struct {
	Level      string // trace, debug, info, warn, error
	JSON       bool   // raw JSON instead of the console writer
	Filename   string
	MaxSizeMB  int64
	MaxBackups int
}

// Setup builds the process logger and installs it as the zerolog
// global. Returns the logger for injection into components.
func Setup(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var console io.Writer = os.Stdout
	if !opts.JSON {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	out := console
	if opts.Filename != "" {
		rotator := &Rotator{
			Filename:   opts.Filename,
			MaxSize:    opts.MaxSizeMB * 1024 * 1024,
			MaxBackups: opts.MaxBackups,
		}
		if err := rotator.openExistingOrNew(); err != nil {
			fmt.Fprintf(os.Stderr, "log file unavailable, stdout only: %v\n", err)
		} else {
			// File always gets JSON lines; console keeps its format.
			out = zerolog.MultiLevelWriter(console, rotator)
		}
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = l
	return l
}

// Rotator implements io.Writer and handles log file rotation based on size.
type Rotator struct {
	Filename   string
	MaxSize    int64 // Bytes
	MaxBackups int
	file       *os.File
	size       int64
	mu         sync.Mutex
}

func (r *Rotator) openExistingOrNew() error {
	info, err := os.Stat(r.Filename)
	if os.IsNotExist(err) {
		return r.openNew()
	}
	if err != nil {
		return err
	}
	f, err := os.OpenFile(r.Filename, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *Rotator) openNew() error {
	f, err := os.OpenFile(r.Filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = 0
	return nil
}

// Write satisfies io.Writer. It checks size and rotates if needed.
func (r *Rotator) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	writeLen := int64(len(p))
	if r.file == nil {
		if err = r.openExistingOrNew(); err != nil {
			return 0, err
		}
	}
	if r.MaxSize > 0 && r.size+writeLen > r.MaxSize {
		if err := r.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	n, err = r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate closes the current file, shifts backups (log -> log.1 -> log.2),
// and opens a fresh file.
func (r *Rotator) rotate() error {
	if r.file != nil {
		r.file.Close()
	}
	for i := r.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", r.Filename, i)
		newPath := fmt.Sprintf("%s.%d", r.Filename, i+1)
		if _, err := os.Stat(oldPath); os.IsNotExist(err) {
			continue
		}
		os.Rename(oldPath, newPath)
	}
	if _, err := os.Stat(r.Filename); err == nil {
		os.Rename(r.Filename, fmt.Sprintf("%s.1", r.Filename))
	}
	return r.openNew()
}
