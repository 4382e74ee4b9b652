package playbook

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/playbook-go/pkg/errors"
)

// Mode controls how much of the update pipeline runs after an execution.
type Mode string

const (
	// ModeAutomatic runs reflection and curation and applies the delta.
	ModeAutomatic Mode = "automatic"
	// ModeObserve runs reflection for offline evaluation but applies nothing.
	ModeObserve Mode = "observe"
	// ModeDisabled runs neither stage.
	ModeDisabled Mode = "disabled"
)

// Config configures the playbook engine.
type Config struct {
	// Domain is the top-level partition all namespaces live under.
	Domain string `yaml:"domain" validate:"required"`

	// Mode selects automatic, observe or disabled operation.
	Mode Mode `yaml:"mode" validate:"required,oneof=automatic observe disabled"`

	// SimilarityThreshold is the cosine similarity at or above which a
	// candidate insight is dropped as a duplicate of an existing entry.
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=1"`

	// MinConfidence is the pruning floor: entries below it are removed.
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=1"`

	// MaxEntries bounds the playbook; lowest-confidence entries are
	// evicted once the cap is exceeded.
	MaxEntries int `yaml:"max_entries" validate:"gt=0"`

	// MaxEntriesInPrompt caps how many entries are injected into the
	// wrapped agent's instructions.
	MaxEntriesInPrompt int `yaml:"max_entries_in_prompt" validate:"gt=0"`

	// MaxEntriesInReflection caps existing entries shown to the reflector.
	MaxEntriesInReflection int `yaml:"max_entries_in_reflection" validate:"gte=0"`

	// MaxEntriesInCuration caps existing entries shown to the curator.
	MaxEntriesInCuration int `yaml:"max_entries_in_curation" validate:"gte=0"`

	// MaxRefineRounds bounds iterative insight refinement.
	MaxRefineRounds int `yaml:"max_refine_rounds" validate:"gte=0"`

	// QueueCapacity bounds each namespace's pending-update queue.
	QueueCapacity int `yaml:"queue_capacity" validate:"gt=0"`

	// CallTimeout applies independently to each provider network call.
	CallTimeout time.Duration `yaml:"call_timeout" validate:"gt=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Domain:                 "default",
		Mode:                   ModeAutomatic,
		SimilarityThreshold:    0.85,
		MinConfidence:          0.3,
		MaxEntries:             100,
		MaxEntriesInPrompt:     10,
		MaxEntriesInReflection: 10,
		MaxEntriesInCuration:   20,
		MaxRefineRounds:        3,
		QueueCapacity:          64,
		CallTimeout:            60 * time.Second,
	}
}

// UnmarshalYAML decodes only the keys present in the document, so values
// already on the receiver (the defaults) survive, and accepts duration
// strings like "30s" for call_timeout.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Domain                 *string  `yaml:"domain"`
		Mode                   *Mode    `yaml:"mode"`
		SimilarityThreshold    *float64 `yaml:"similarity_threshold"`
		MinConfidence          *float64 `yaml:"min_confidence"`
		MaxEntries             *int     `yaml:"max_entries"`
		MaxEntriesInPrompt     *int     `yaml:"max_entries_in_prompt"`
		MaxEntriesInReflection *int     `yaml:"max_entries_in_reflection"`
		MaxEntriesInCuration   *int     `yaml:"max_entries_in_curation"`
		MaxRefineRounds        *int     `yaml:"max_refine_rounds"`
		QueueCapacity          *int     `yaml:"queue_capacity"`
		CallTimeout            *string  `yaml:"call_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Domain != nil {
		c.Domain = *raw.Domain
	}
	if raw.Mode != nil {
		c.Mode = *raw.Mode
	}
	if raw.SimilarityThreshold != nil {
		c.SimilarityThreshold = *raw.SimilarityThreshold
	}
	if raw.MinConfidence != nil {
		c.MinConfidence = *raw.MinConfidence
	}
	if raw.MaxEntries != nil {
		c.MaxEntries = *raw.MaxEntries
	}
	if raw.MaxEntriesInPrompt != nil {
		c.MaxEntriesInPrompt = *raw.MaxEntriesInPrompt
	}
	if raw.MaxEntriesInReflection != nil {
		c.MaxEntriesInReflection = *raw.MaxEntriesInReflection
	}
	if raw.MaxEntriesInCuration != nil {
		c.MaxEntriesInCuration = *raw.MaxEntriesInCuration
	}
	if raw.MaxRefineRounds != nil {
		c.MaxRefineRounds = *raw.MaxRefineRounds
	}
	if raw.QueueCapacity != nil {
		c.QueueCapacity = *raw.QueueCapacity
	}
	if raw.CallTimeout != nil {
		d, err := time.ParseDuration(*raw.CallTimeout)
		if err != nil {
			return err
		}
		c.CallTimeout = d
	}
	return nil
}

var configValidator = validator.New()

// Validate checks that the config has valid values.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return errors.Wrap(err, errors.ValidationFailed, "invalid playbook config")
	}
	return nil
}

// LoadConfig reads a YAML config file, layering it over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to read config file"),
			errors.Fields{"path": path},
		)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse config file"),
			errors.Fields{"path": path},
		)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
