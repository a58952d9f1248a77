package config

import (
	"os"

	"github.com/pelletier/go-toml"
	"tlog.app/go/errors"
)

type (
	Config struct {
		Lower  Lower
		Interp Interp
	}

	Lower struct {
		// Patterns lists enabled patterns by op name: if, for, parallel.
		Patterns []string

		// Partial keeps going after a failed rewrite and leaves the op in place.
		Partial bool

		// Atomic restores the function if a rewrite fails halfway.
		Atomic bool

		VerifyEach  bool
		MaxRewrites int

		// Jobs is the number of functions lowered concurrently.
		Jobs int
	}

	Interp struct {
		MaxSteps int
	}

	file struct {
		Lower struct {
			Patterns    []string `toml:"patterns"`
			Partial     bool     `toml:"partial"`
			Atomic      bool     `toml:"atomic"`
			VerifyEach  bool     `toml:"verify_each"`
			MaxRewrites int      `toml:"max_rewrites"`
			Jobs        int      `toml:"jobs"`
		} `toml:"lower"`

		Interp struct {
			MaxSteps int `toml:"max_steps"`
		} `toml:"interp"`
	}
)

var knownKeys = []string{
	"lower",
	"lower.patterns",
	"lower.partial",
	"lower.atomic",
	"lower.verify_each",
	"lower.max_rewrites",
	"lower.jobs",
	"interp",
	"interp.max_steps",
}

func Default() Config {
	return Config{
		Lower: Lower{
			Patterns:    []string{"if", "for", "parallel"},
			Atomic:      true,
			MaxRewrites: 100000,
			Jobs:        1,
		},
		Interp: Interp{
			MaxSteps: 10000000,
		},
	}
}

func Load(name string) (Config, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrap(err, "config %v", name)
	}

	return cfg, nil
}

// Parse overrides Default with the keys present in the toml text.
func Parse(data []byte) (cfg Config, err error) {
	cfg = Default()

	t, err := toml.LoadBytes(data)
	if err != nil {
		return cfg, errors.Wrap(err, "parse toml")
	}

	if err = checkKeys(t, ""); err != nil {
		return cfg, err
	}

	var f file

	err = t.Unmarshal(&f)
	if err != nil {
		return cfg, errors.Wrap(err, "unmarshal")
	}

	if t.Has("lower.patterns") {
		cfg.Lower.Patterns = f.Lower.Patterns
	}
	if t.Has("lower.partial") {
		cfg.Lower.Partial = f.Lower.Partial
	}
	if t.Has("lower.atomic") {
		cfg.Lower.Atomic = f.Lower.Atomic
	}
	if t.Has("lower.verify_each") {
		cfg.Lower.VerifyEach = f.Lower.VerifyEach
	}
	if t.Has("lower.max_rewrites") {
		cfg.Lower.MaxRewrites = f.Lower.MaxRewrites
	}
	if t.Has("lower.jobs") {
		cfg.Lower.Jobs = f.Lower.Jobs
	}
	if t.Has("interp.max_steps") {
		cfg.Interp.MaxSteps = f.Interp.MaxSteps
	}

	if err = cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	for _, p := range c.Lower.Patterns {
		switch p {
		case "if", "for", "parallel":
		default:
			return errors.New("unknown pattern: %q", p)
		}
	}

	if c.Lower.Jobs < 1 {
		return errors.New("jobs must be positive: %d", c.Lower.Jobs)
	}

	if c.Lower.MaxRewrites < 0 || c.Interp.MaxSteps < 0 {
		return errors.New("limits must not be negative")
	}

	return nil
}

func checkKeys(t *toml.Tree, prefix string) error {
	for _, k := range t.Keys() {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}

		if !known(full) {
			return errors.New("unknown config key: %v", full)
		}

		if sub, ok := t.Get(k).(*toml.Tree); ok {
			if err := checkKeys(sub, full); err != nil {
				return err
			}
		}
	}

	return nil
}

func known(k string) bool {
	for _, x := range knownKeys {
		if x == k {
			return true
		}
	}

	return false
}
