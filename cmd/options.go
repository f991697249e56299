package cmd

import "github.com/spiffcs/repopulse/internal/output"

// Options holds the shared command-line options for the repopulse CLI.
type Options struct {
	Verbosity int
	Format    string // table, json, markdown
	ChatID    int64  // subscriber the command acts for

	// Filter options
	Include []string
	Exclude []string
}

// Option is a functional option for configuring Options.
type Option func(*Options)

// NewOptions creates a new Options with defaults and applies any provided options.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		Format: string(output.FormatTable),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithFormat sets the output format (table, json, markdown).
func WithFormat(format string) Option {
	return func(o *Options) {
		o.Format = format
	}
}

// WithVerbosity sets the verbosity level.
func WithVerbosity(v int) Option {
	return func(o *Options) {
		o.Verbosity = v
	}
}

// WithChatID sets the subscriber chat id.
func WithChatID(id int64) Option {
	return func(o *Options) {
		o.ChatID = id
	}
}

// WithInclude sets the include labels of a filter.
func WithInclude(labels []string) Option {
	return func(o *Options) {
		o.Include = labels
	}
}

// WithExclude sets the exclude labels of a filter.
func WithExclude(labels []string) Option {
	return func(o *Options) {
		o.Exclude = labels
	}
}
