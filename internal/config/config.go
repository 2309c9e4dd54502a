// Package config defines the data structures related to configuration and
// includes functions for loading and validating it.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/iwvelando/capex-depreciation/internal/server"
	"github.com/iwvelando/capex-depreciation/internal/store"
	"github.com/iwvelando/capex-depreciation/pkg/constants"
	"github.com/iwvelando/capex-depreciation/pkg/validation"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Configuration holds all configuration for capex-depreciation.
type Configuration struct {
	Logging  LoggingConfig `yaml:"logging,omitempty"`
	Output   OutputConfig  `yaml:"output,omitempty"`
	Database store.Config  `yaml:"database"`
	Engine   EngineConfig  `yaml:"engine"`
	Server   server.Config `yaml:"server"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv
}

// EngineConfig tunes depreciation runs.
type EngineConfig struct {
	HorizonYear int `yaml:"horizonYear"`
	Workers     int `yaml:"workers"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// every key needs a default for AutomaticEnv to reach it during Unmarshal
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
	v.SetDefault("database.driver", constants.DriverSQLite)
	v.SetDefault("database.path", constants.DefaultSQLitePath)
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", constants.DefaultPostgresPort)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.sslMode", "")
	v.SetDefault("database.maxConns", 0)
	v.SetDefault("database.minConns", 0)
	v.SetDefault("engine.horizonYear", constants.DefaultHorizonYear)
	v.SetDefault("engine.workers", constants.DefaultWorkers)
	serverDefaults := server.DefaultConfig()
	v.SetDefault("server.address", serverDefaults.Address)
	v.SetDefault("server.maxUploadSize", serverDefaults.MaxUploadSize)
	v.SetDefault("server.metrics", serverDefaults.Metrics)
	return v
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. An empty path yields the defaults plus any CAPEX_
// environment overrides.
func LoadConfiguration(configPath string) (*Configuration, error) {
	if configPath == "" {
		return decode(newViper())
	}
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}
	defer file.Close()
	return LoadConfigurationFromReader(file)
}

// LoadConfigurationFromReader loads YAML configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config data, %s", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// Validate rejects settings the application cannot run with.
func (c *Configuration) Validate() error {
	if err := validation.ValidateDriver(c.Database.Driver); err != nil {
		return err
	}
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return err
	}
	if c.Engine.HorizonYear <= 0 {
		return fmt.Errorf("engine.horizonYear must be positive, got %d", c.Engine.HorizonYear)
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be positive, got %d", c.Engine.Workers)
	}
	if err := c.Server.Normalize(); err != nil {
		return fmt.Errorf("server.maxUploadSize: %w", err)
	}
	return nil
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	return c.ValidateConfigurationWithFixedTime(time.Now())
}

// ValidateConfigurationWithFixedTime validates against the year of fixedTime.
func (c *Configuration) ValidateConfigurationWithFixedTime(fixedTime time.Time) []string {
	validator := validation.ConfigValidator{
		HorizonYear: c.Engine.HorizonYear,
		Workers:     c.Engine.Workers,
		Driver:      c.Database.Driver,
		CurrentYear: fixedTime.Year(),
	}
	return validator.ValidateAll()
}

// YAML renders the effective configuration with the database password masked.
func (c *Configuration) YAML() ([]byte, error) {
	masked := *c
	if masked.Database.Password != "" {
		masked.Database.Password = "********"
	}
	return yaml.Marshal(masked)
}
