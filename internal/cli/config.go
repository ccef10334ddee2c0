// Package cli runs one prediction round from the command line and prints
// the aggregate.
package cli

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/agropredict/internal/domain/model"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

const (
	defaultBaseURL = "http://localhost:5000"
	defaultTimeout = 15 * time.Second
)

// Config holds the parsed command line.
type Config struct {
	BaseURL    string            // prediction service base URL
	Domain     model.Domain      // growth or climate
	Models     []string          // nil selects the service defaults
	Input      model.InputRecord // field values from -set
	Format     string            // json or yaml
	Timeout    time.Duration     // per-model call timeout
	ListModels bool              // print the catalog instead of predicting
	Verbose    bool              // log partial results as they arrive

	Out io.Writer
	Err io.Writer
}

// setFlag collects repeated -set name=value pairs.
type setFlag struct {
	values model.InputRecord
}

func (s *setFlag) String() string {
	if s == nil || len(s.values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(s.values[k], 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (s *setFlag) Set(raw string) error {
	name, value, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("expected name=value, got %q", raw)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s: %q is not a finite number", name, value)
	}
	s.values[name] = v
	return nil
}

// ParseArgs parses args (without the program name).
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{Out: os.Stdout, Err: os.Stderr}
	sets := &setFlag{values: model.InputRecord{}}

	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	domain := fs.String("domain", string(model.DomainGrowth), "prediction domain: growth or climate")
	models := fs.String("models", "", "comma-separated model names; empty string for none, omit for defaults")
	fs.Var(sets, "set", "input field as name=value; repeatable")
	fs.StringVar(&cfg.BaseURL, "url", defaultBaseURL, "prediction service base URL")
	fs.StringVar(&cfg.Format, "format", FormatJSON, "output format: json or yaml")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "per-model call timeout")
	fs.BoolVar(&cfg.ListModels, "list-models", false, "print the model catalog and metrics")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "log partial results")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", ErrUsage, fs.Args())
	}

	d, err := model.ParseDomain(*domain)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	cfg.Domain = d
	cfg.Input = sets.values

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "models" {
			cfg.Models = splitModels(*models)
		}
	})

	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.Format != FormatJSON && cfg.Format != FormatYAML {
		return nil, fmt.Errorf("%w: unknown format %q", ErrUsage, cfg.Format)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", ErrUsage)
	}
	return cfg, nil
}

// splitModels returns a non-nil slice so an explicit empty flag means no models.
func splitModels(raw string) []string {
	out := []string{}
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
