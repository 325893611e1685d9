package internal

import (
	"io"
	"log/slog"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	stdout  io.Writer
	stdin   io.Reader
	workdir string
	logger  *slog.Logger
	version string
}

// WithConfig sets the application configuration. Without it the
// configuration is loaded from --config.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithStdout sets where command output goes.
func WithStdout(w io.Writer) Option {
	return func(a *application) {
		a.stdout = w
	}
}

// WithStdin sets where `mem add` reads content from when -c is absent.
func WithStdin(r io.Reader) Option {
	return func(a *application) {
		a.stdin = r
	}
}

// WithWorkDir sets the directory the implicit store is located from.
func WithWorkDir(dir string) Option {
	return func(a *application) {
		a.workdir = dir
	}
}

// WithLogger overrides the logger built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(a *application) {
		a.logger = logger
	}
}

// WithVersion sets the version reported by --version and the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
