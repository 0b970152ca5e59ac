package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/swissfetch/internal/model"
	"github.com/3leaps/swissfetch/pkg/revision"
)

//go:embed defaults.json
var embeddedDefaultsJSON []byte

//go:embed config.schema.json
var embeddedSchemaJSON []byte

const schemaURL = "https://3leaps.dev/schemas/swissfetch/config.schema.json"

// EnvAPIBase overrides the hosting API base URL.
const EnvAPIBase = "SWISSFETCH_API_BASE"

// Auxiliary names the release families that provide replacement bootloaders.
type Auxiliary struct {
	Cubeboot string `json:"cubeboot" yaml:"cubeboot"`
	Cubiboot string `json:"cubiboot" yaml:"cubiboot"`
}

// Blocklist is the revision range known to corrupt firmware on Targets.
type Blocklist struct {
	Min     int            `json:"min" yaml:"min"`
	Max     int            `json:"max" yaml:"max"`
	Targets []model.Target `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// For returns the blocked range for target, or an empty range if the target
// is not affected.
func (b Blocklist) For(target model.Target) revision.Range {
	for _, t := range b.Targets {
		if t == target {
			return revision.Range{Min: b.Min, Max: b.Max}
		}
	}
	return revision.Range{}
}

// Config is the immutable run configuration. Schema: config.schema.json
type Config struct {
	Schema         string    `json:"schema" yaml:"schema"`
	Version        int       `json:"version" yaml:"version"`
	APIBase        string    `json:"apiBase" yaml:"apiBase"`
	UserAgent      string    `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	TimeoutSeconds int       `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	Repo           string    `json:"repo" yaml:"repo"`
	Auxiliary      Auxiliary `json:"auxiliary" yaml:"auxiliary"`
	Blocklist      Blocklist `json:"blocklist" yaml:"blocklist"`
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// override is the YAML override file. Pointer fields distinguish "unset"
// from "set to zero".
type override struct {
	APIBase        string     `yaml:"apiBase"`
	UserAgent      string     `yaml:"userAgent"`
	TimeoutSeconds *int       `yaml:"timeoutSeconds"`
	Repo           string     `yaml:"repo"`
	Auxiliary      Auxiliary  `yaml:"auxiliary"`
	Blocklist      *Blocklist `yaml:"blocklist"`
}

var (
	defaultsOnce sync.Once
	defaults     *Config
	defaultsErr  error

	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Defaults returns the embedded configuration.
func Defaults() (*Config, error) {
	defaultsOnce.Do(func() {
		if len(embeddedDefaultsJSON) == 0 {
			defaultsErr = errors.New("embedded config is empty")
			return
		}
		var cfg Config
		if err := json.Unmarshal(embeddedDefaultsJSON, &cfg); err != nil {
			defaultsErr = errors.Wrap(err, "parse embedded config")
			return
		}
		if err := Validate(&cfg); err != nil {
			defaultsErr = errors.Wrap(err, "embedded config")
			return
		}
		defaults = &cfg
	})
	if defaultsErr != nil {
		return nil, defaultsErr
	}
	c := clone(defaults)
	return &c, nil
}

// Load returns the embedded defaults merged with the YAML file at path (if
// non-empty) and with environment overrides, validated.
func Load(path string) (*Config, error) {
	cfg, err := Defaults()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- user-supplied config path
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		var ov override
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&ov); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
		merged := merge(*cfg, ov)
		cfg = &merged
	}

	if base := strings.TrimSpace(os.Getenv(EnvAPIBase)); base != "" {
		cfg.APIBase = base
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func merge(base Config, ov override) Config {
	cfg := clone(&base)
	if ov.APIBase != "" {
		cfg.APIBase = ov.APIBase
	}
	if ov.UserAgent != "" {
		cfg.UserAgent = ov.UserAgent
	}
	if ov.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *ov.TimeoutSeconds
	}
	if ov.Repo != "" {
		cfg.Repo = ov.Repo
	}
	if ov.Auxiliary.Cubeboot != "" {
		cfg.Auxiliary.Cubeboot = ov.Auxiliary.Cubeboot
	}
	if ov.Auxiliary.Cubiboot != "" {
		cfg.Auxiliary.Cubiboot = ov.Auxiliary.Cubiboot
	}
	// The blocklist is replaced as a whole so a file can narrow it.
	if ov.Blocklist != nil {
		cfg.Blocklist = Blocklist{
			Min:     ov.Blocklist.Min,
			Max:     ov.Blocklist.Max,
			Targets: append([]model.Target(nil), ov.Blocklist.Targets...),
		}
	}
	return cfg
}

func clone(c *Config) Config {
	out := *c
	out.Blocklist.Targets = append([]model.Target(nil), c.Blocklist.Targets...)
	return out
}

// Validate checks cfg against the embedded JSON schema and the constraints
// the schema cannot express.
func Validate(cfg *Config) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return errors.Wrap(err, "decode config")
	}

	var problems []string
	if err := sch.Validate(inst); err != nil {
		problems = append(problems, strings.TrimSpace(err.Error()))
	}
	if cfg.Blocklist.Max < cfg.Blocklist.Min {
		problems = append(problems, fmt.Sprintf("blocklist: max %d is below min %d", cfg.Blocklist.Max, cfg.Blocklist.Min))
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid config:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(embeddedSchemaJSON))
		if err != nil {
			schemaErr = errors.Wrap(err, "parse embedded schema")
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = errors.Wrap(err, "add schema resource")
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = errors.Wrap(schemaErr, "compile schema")
		}
	})
	return schema, schemaErr
}
