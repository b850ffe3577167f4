// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Model struct {
		// Dir is the deployment directory. Empty means the executable's directory.
		Dir          string `yaml:"dir"`
		Type         string `yaml:"type"`
		ModelFile    string `yaml:"model_file"`
		FeaturesFile string `yaml:"features_file"`
		Classes      int    `yaml:"classes"`
		MemoSize     int    `yaml:"memo_size"`
	} `yaml:"model"`
	Labels struct {
		Language string `yaml:"language"`
		Dir      string `yaml:"dir"`
	} `yaml:"labels"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.Http.Port = 8501
	c.Http.Timeout = 30 * time.Second
	c.Http.AllowedOrigins = []string{"*"}
	c.Http.MaxBodyBytes = 1 << 20
	c.Model.Type = "xgboost"
	c.Model.ModelFile = "social_work_model.json"
	c.Model.FeaturesFile = "feature_names.pkl"
	c.Model.Classes = 3
	c.Labels.Language = "zh-TW"
	c.Log.Level = "info"
	c.Log.Format = "console"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	return c
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return config, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Http.Port <= 0 || c.Http.Port > 65535:
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	case c.Http.Timeout <= 0:
		return errors.New("http.timeout must be positive")
	case c.Model.ModelFile == "":
		return errors.New("model.model_file is required")
	case c.Model.FeaturesFile == "":
		return errors.New("model.features_file is required")
	case c.Model.Classes < 2:
		return fmt.Errorf("model.classes must be at least 2, got %d", c.Model.Classes)
	case c.Model.MemoSize < 0:
		return errors.New("model.memo_size must not be negative")
	}
	return nil
}

// ModelDir resolves the deployment directory the artifact files live in.
func (c *Config) ModelDir() (string, error) {
	if c.Model.Dir != "" {
		return filepath.Abs(c.Model.Dir)
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return filepath.Dir(exe), nil
}
