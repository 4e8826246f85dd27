// Package config loads finder options from a YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/v0xg/nodepath/internal/finder"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv and the CLI.
const (
	EnvConfig    = "NODEPATH_CONFIG"
	EnvThreshold = "NODEPATH_THRESHOLD"
)

// Config is the on-disk form of finder.Options.
type Config struct {
	// Root is a CSS query locating the walk's upper bound. Empty means body.
	Root  string       `yaml:"root"`
	ID    PatternRules `yaml:"id"`
	Class PatternRules `yaml:"class"`
	Tag   PatternRules `yaml:"tag"`
	Attr  AttrRules    `yaml:"attr"`

	SeedMinLength      int `yaml:"seed_min_length"`
	OptimizedMinLength int `yaml:"optimized_min_length"`
	Threshold          int `yaml:"threshold"`
}

// PatternRules filters tokens with regular expressions. A token is accepted
// when it matches some Allow pattern (or Allow is empty) and no Deny pattern.
type PatternRules struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// AttrRules lists attribute names usable in selectors. Values matching any
// ValueDeny pattern are skipped. An empty Allow keeps attributes out entirely.
type AttrRules struct {
	Allow     []string `yaml:"allow"`
	ValueDeny []string `yaml:"value_deny"`
}

// Default returns a configuration equivalent to finder.DefaultOptions.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	d := finder.DefaultOptions()
	if c.SeedMinLength <= 0 {
		c.SeedMinLength = d.SeedMinLength
	}
	if c.OptimizedMinLength <= 0 {
		c.OptimizedMinLength = d.OptimizedMinLength
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
}

// ApplyEnv overrides fields from environment variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvThreshold); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: want a positive integer, got %q", EnvThreshold, v)
		}
		c.Threshold = n
	}
	return nil
}

// Options compiles the configuration into finder options for doc.
func (c *Config) Options(doc *html.Node, logger *zap.Logger) (*finder.Options, error) {
	opts := &finder.Options{
		SeedMinLength:      c.SeedMinLength,
		OptimizedMinLength: c.OptimizedMinLength,
		Threshold:          c.Threshold,
		Logger:             logger,
	}

	var err error
	if opts.IDName, err = c.ID.predicate(); err != nil {
		return nil, fmt.Errorf("id rules: %w", err)
	}
	if opts.ClassName, err = c.Class.predicate(); err != nil {
		return nil, fmt.Errorf("class rules: %w", err)
	}
	if opts.TagName, err = c.Tag.predicate(); err != nil {
		return nil, fmt.Errorf("tag rules: %w", err)
	}
	if opts.Attr, err = c.Attr.predicate(); err != nil {
		return nil, fmt.Errorf("attr rules: %w", err)
	}

	if c.Root != "" {
		sel, err := cascadia.Compile(c.Root)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", c.Root, err)
		}
		opts.Root = cascadia.Query(doc, sel)
		if opts.Root == nil {
			return nil, fmt.Errorf("root %q matched no element", c.Root)
		}
	}
	return opts, nil
}

// predicate returns nil when no rule is set, leaving the finder default.
func (r PatternRules) predicate() (func(string) bool, error) {
	if len(r.Allow) == 0 && len(r.Deny) == 0 {
		return nil, nil
	}
	allow, err := compileAll(r.Allow)
	if err != nil {
		return nil, err
	}
	deny, err := compileAll(r.Deny)
	if err != nil {
		return nil, err
	}
	return func(s string) bool {
		if len(allow) > 0 && !matchAny(allow, s) {
			return false
		}
		return !matchAny(deny, s)
	}, nil
}

func (r AttrRules) predicate() (func(string, string) bool, error) {
	if len(r.Allow) == 0 {
		return nil, nil
	}
	names := make(map[string]struct{}, len(r.Allow))
	for _, n := range r.Allow {
		names[strings.ToLower(n)] = struct{}{}
	}
	deny, err := compileAll(r.ValueDeny)
	if err != nil {
		return nil, err
	}
	return func(name, value string) bool {
		if _, ok := names[name]; !ok {
			return false
		}
		return !matchAny(deny, value)
	}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
