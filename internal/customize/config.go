package customize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultDomain is the model-mapping key every project must carry; unknown
// domains fall back to it.
const DefaultDomain = "default"

type ProjectConfig struct {
	// Models maps a domain to the model trained on its decisions. The
	// "default" key is required.
	Models map[string]string `mapstructure:"models" json:"models" yaml:"models"`

	// Hyperparameters are passed through opaquely to training consumers.
	Hyperparameters map[string]interface{} `mapstructure:"hyperparameters" json:"hyperparameters,omitempty" yaml:"hyperparameters"`
}

type Config struct {
	RewardWindowInSeconds int                      `mapstructure:"reward_window_in_seconds" json:"reward_window_in_seconds" yaml:"reward_window_in_seconds"`
	ProjectConfigs        map[string]ProjectConfig `mapstructure:"projects" json:"projects" yaml:"projects"`
}

// LoadConfig reads and validates the customization config from its own file,
// separate from the daemon config.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read customization config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode customization config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var missing []string

	if c.RewardWindowInSeconds <= 0 {
		missing = append(missing, "reward_window_in_seconds")
	}
	if len(c.ProjectConfigs) == 0 {
		missing = append(missing, "projects")
	}
	for name, p := range c.ProjectConfigs {
		// Names become object-store path segments
		if name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("invalid project name: %q", name)
		}
		if p.Models[DefaultDomain] == "" {
			missing = append(missing, fmt.Sprintf("projects.%s.models.default", name))
		}
		for domain, model := range p.Models {
			if model == "" || strings.Contains(model, "/") || strings.Contains(domain, "/") {
				return fmt.Errorf("project %s: invalid model mapping %q: %q", name, domain, model)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing/invalid customization fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Window returns the reward window W.
func (c *Config) Window() time.Duration {
	return time.Duration(c.RewardWindowInSeconds) * time.Second
}

func (c *Config) HasProject(name string) bool {
	_, ok := c.ProjectConfigs[name]
	return ok
}

// Projects enumerates the configured project names, sorted.
func (c *Config) Projects() []string {
	names := make([]string, 0, len(c.ProjectConfigs))
	for name := range c.ProjectConfigs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModelForDomain resolves the model a domain's decisions train, falling back
// to the project's default model for unknown domains.
func (c *Config) ModelForDomain(project, domain string) (string, error) {
	p, ok := c.ProjectConfigs[project]
	if !ok {
		return "", fmt.Errorf("unknown project: %s", project)
	}
	if model := p.Models[domain]; model != "" {
		return model, nil
	}
	return p.Models[DefaultDomain], nil
}

// Hyperparameters returns a project's opaque hyperparameter overrides.
func (c *Config) Hyperparameters(project string) map[string]interface{} {
	return c.ProjectConfigs[project].Hyperparameters
}
