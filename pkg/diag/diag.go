// Package diag provides the three diagnostic text channels used across
// volreg: info, warning and error. The channels form an explicitly
// constructed sink object that is injected into engines rather than
// mutated as process-wide state; each channel is independently routable
// to a standard stream, a named file, or suppressed entirely.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"volreg/pkg/regerr"
)

// Channel codes, fixed by the wire protocol of the original tooling.
const (
	InfoChannel    = 0
	WarningChannel = 1
	ErrorChannel   = 2
)

// Destination names understood by New in addition to file paths.
// The empty string suppresses a channel.
const (
	ToStdout = "stdout"
	ToStderr = "stderr"
)

// Config routes each channel to "stdout", "stderr", a file path, or
// (empty string) nowhere.
type Config struct {
	Info    string
	Warning string
	Error   string
}

// Channels is a set of three independent diagnostic sinks. The zero
// value is not usable; construct with New or Default.
type Channels struct {
	info  *slog.Logger
	warn  *slog.Logger
	errch *slog.Logger
	files []*os.File
}

// Default routes info to stdout and warning/error to stderr.
func Default() *Channels {
	c, _ := New(Config{Info: ToStdout, Warning: ToStderr, Error: ToStderr})
	return c
}

// Discard suppresses all three channels. Useful in tests.
func Discard() *Channels {
	c, _ := New(Config{})
	return c
}

// New builds a channel set from the given routing. Opening a file
// destination that cannot be created fails with an IOError; any files
// already opened are closed before returning.
func New(cfg Config) (*Channels, error) {
	c := &Channels{}
	dests := []struct {
		name string
		route string
		out  **slog.Logger
	}{
		{"info", cfg.Info, &c.info},
		{"warning", cfg.Warning, &c.warn},
		{"error", cfg.Error, &c.errch},
	}
	for _, d := range dests {
		w, f, err := openDestination(d.route)
		if err != nil {
			c.Close()
			return nil, regerr.Wrap(regerr.IOError, "diag.New", err,
				"cannot open %s channel destination %q", d.name, d.route)
		}
		if f != nil {
			c.files = append(c.files, f)
		}
		*d.out = slog.New(slog.NewTextHandler(w, nil))
	}
	return c, nil
}

func openDestination(route string) (io.Writer, *os.File, error) {
	switch route {
	case "":
		return io.Discard, nil, nil
	case ToStdout:
		return os.Stdout, nil, nil
	case ToStderr:
		return os.Stderr, nil, nil
	default:
		f, err := os.OpenFile(route, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	}
}

// Info writes to the info channel.
func (c *Channels) Info(msg string, args ...any) {
	c.info.Info(fmt.Sprintf(msg, args...))
}

// Warning writes to the warning channel.
func (c *Channels) Warning(msg string, args ...any) {
	c.warn.Warn(fmt.Sprintf(msg, args...))
}

// Error writes to the error channel.
func (c *Channels) Error(msg string, args ...any) {
	c.errch.Error(fmt.Sprintf(msg, args...))
}

// Close releases any file-backed destinations. Channels routed to the
// standard streams are unaffected. Close is safe to call more than once.
func (c *Channels) Close() error {
	var first error
	for _, f := range c.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.files = nil
	return first
}
