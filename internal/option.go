package internal

import "github.com/starford/decisionrecords/internal/workspace"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	settings *workspace.Settings
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithSettings sets the discovered workspace. Without it the workspace is
// discovered from Config.Workspace.Path.
func WithSettings(s *workspace.Settings) Option {
	return func(a *application) {
		a.settings = s
	}
}

func (a *application) resolve(opts []Option) error {
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return errConfigRequired
	}
	if a.settings != nil {
		return nil
	}
	start := a.config.Workspace.Path
	if start == "" {
		start = "."
	}
	s, err := workspace.Discover(start)
	if err != nil {
		return err
	}
	a.settings = s
	return nil
}
