// Package config holds the settings of an encrypted fit, read from YAML.
package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Transport names.
const (
	TransportChannel = "channel"
	TransportUDP     = "udp"
)

// Config is the whole configuration.
type Config struct {
	Session    Session    `yaml:"session"`
	FixedPoint FixedPoint `yaml:"fixed_point"`
	Inverse    Inverse    `yaml:"inverse"`
	Provider   Provider   `yaml:"provider"`
	Network    Network    `yaml:"network"`
	Log        Log        `yaml:"log"`
	Data       Data       `yaml:"data"`
}

// Session sets up the parties of a fit.
type Session struct {
	// Holders is the number of data holders. One auxiliary party joins them.
	Holders   int  `yaml:"holders"`
	Intercept bool `yaml:"intercept"`
}

// FixedPoint is the layout of shared reals.
type FixedPoint struct {
	FracBits uint `yaml:"frac_bits"`
	Bound    uint `yaml:"bound_bits"`
	Sigma    uint `yaml:"sigma_bits"`
}

// Inverse tunes the Newton-Schulz iteration.
type Inverse struct {
	Iterations int     `yaml:"iterations"`
	CheckEvery int     `yaml:"check_every"`
	Tolerance  float64 `yaml:"tolerance"`
	// MagnitudeBound is the bound on the scaled inputs.
	MagnitudeBound float64 `yaml:"magnitude_bound"`
}

// Provider configures the crypto provider.
type Provider struct {
	// TripleBudget caps the triples of a fit, 0 for no cap.
	TripleBudget int `yaml:"triple_budget"`
}

// Network configures how parties talk.
type Network struct {
	Transport    string        `yaml:"transport"`
	Host         string        `yaml:"host"`
	PartyTimeout time.Duration `yaml:"party_timeout"`
}

// Log sets the global log level.
type Log struct {
	Level string `yaml:"level"`
}

// Data describes how CSV shards are read.
type Data struct {
	Target   string   `yaml:"target"`
	Features []string `yaml:"features"`
	// Scale divides every column by a power of ten so that its largest
	// magnitude falls within the bound.
	Scale bool `yaml:"scale"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Session: Session{
			Holders:   2,
			Intercept: true,
		},
		FixedPoint: FixedPoint{
			FracBits: 48,
			Bound:    128,
			Sigma:    64,
		},
		Inverse: Inverse{
			Iterations:     64,
			CheckEvery:     8,
			Tolerance:      1e-6,
			MagnitudeBound: 10,
		},
		Network: Network{
			Transport:    TransportChannel,
			Host:         "127.0.0.1",
			PartyTimeout: 10 * time.Second,
		},
		Log: Log{
			Level: "info",
		},
		Data: Data{
			Scale: true,
		},
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (Config, error) {
	conf := Default()

	buf, err := os.ReadFile(path)
	if err != nil {
		return conf, xerrors.Errorf("failed to read config: %v", err)
	}
	err = yaml.Unmarshal(buf, &conf)
	if err != nil {
		return conf, xerrors.Errorf("failed to parse config %s: %v", path, err)
	}

	return conf, conf.Validate()
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Session.Holders < 1 {
		return xerrors.Errorf("session needs at least one data holder, got %d", c.Session.Holders)
	}
	if c.FixedPoint.FracBits == 0 || c.FixedPoint.Bound <= 2*c.FixedPoint.FracBits {
		return xerrors.Errorf("fixed point: %d bound bits for %d fractional bits",
			c.FixedPoint.Bound, c.FixedPoint.FracBits)
	}
	if c.Inverse.Iterations <= 0 || c.Inverse.CheckEvery <= 0 {
		return xerrors.Errorf("inverse: %d iterations, check every %d", c.Inverse.Iterations, c.Inverse.CheckEvery)
	}
	if !(c.Inverse.Tolerance > 0) || !(c.Inverse.MagnitudeBound > 0) {
		return xerrors.Errorf("inverse: tolerance %v, magnitude bound %v", c.Inverse.Tolerance, c.Inverse.MagnitudeBound)
	}
	if c.Provider.TripleBudget < 0 {
		return xerrors.Errorf("negative triple budget %d", c.Provider.TripleBudget)
	}
	switch c.Network.Transport {
	case TransportChannel, TransportUDP:
	default:
		return xerrors.Errorf("unknown transport %q", c.Network.Transport)
	}
	if c.Network.PartyTimeout <= 0 {
		return xerrors.Errorf("party timeout %s", c.Network.PartyTimeout)
	}
	_, err := c.LogLevel()
	return err
}

// LogLevel parses the log level.
func (c Config) LogLevel() (zerolog.Level, error) {
	if c.Log.Level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.NoLevel, xerrors.Errorf("log level: %v", err)
	}
	return lvl, nil
}
