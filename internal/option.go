package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config       *Config
	noAggregator bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithoutAggregator disables the background feed aggregation loop even
// when the configuration enables it.
func WithoutAggregator() Option {
	return func(a *application) {
		a.noAggregator = true
	}
}
