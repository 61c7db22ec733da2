// Package config loads the server configuration from a YAML file with
// environment overrides for the values that differ per deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes "90s" style YAML values into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server struct {
		Addr  string `yaml:"addr"`
		Debug bool   `yaml:"debug"`
	} `yaml:"server"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Ledger struct {
		RegistryAddress string `yaml:"registry_address"`
		AdminAddress    string `yaml:"admin_address"`
		MaxHeightJump   uint64 `yaml:"max_height_jump"`
	} `yaml:"ledger"`
	Oracle struct {
		NetworkID         string   `yaml:"network_id"`
		SubscriptionID    uint64   `yaml:"subscription_id"`
		OracleAddress     string   `yaml:"oracle_address"`
		EvaluationScript  string   `yaml:"evaluation_script"`
		AuthorizedCallers []string `yaml:"authorized_callers"`
		Enabled           bool     `yaml:"enabled"`
		QueueSize         int      `yaml:"queue_size"`
		Workers           int      `yaml:"workers"`
		EvalTimeout       Duration `yaml:"eval_timeout"`
		VerifyTimeout     Duration `yaml:"verify_timeout"`
	} `yaml:"oracle"`
	Grader struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"grader"`
}

// Defaults fills the fields a minimal config file may omit.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/quizchain.db"
	}
	if c.Oracle.VerifyTimeout == 0 {
		c.Oracle.VerifyTimeout = Duration(10 * time.Minute)
	}
}

// Load reads filename and applies env overrides. A missing file yields the
// defaults so a fresh checkout runs without ceremony.
func Load(filename string) (*Config, error) {
	cfg := &Config{}
	cfg.Oracle.Enabled = true
	if filename != "" {
		f, err := os.Open(filename)
		if err == nil {
			defer func() {
				if cerr := f.Close(); cerr != nil {
					fmt.Println("config close failed:", cerr)
				}
			}()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("open config: %w", err)
		}
	}
	if addr := os.Getenv("QUIZCHAIN_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if path := os.Getenv("QUIZCHAIN_DB_PATH"); path != "" {
		cfg.Database.Path = path
	}
	if key := os.Getenv("QUIZCHAIN_GRADER_API_KEY"); key != "" {
		cfg.Grader.APIKey = key
	}
	cfg.applyDefaults()
	return cfg, nil
}
