package main

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// AdapterConfig is one configured device connection.
type AdapterConfig struct {
	Name             string `mapstructure:"name"`
	Address          string `mapstructure:"address"`
	ConnectionString string `mapstructure:"connection_string"`
}

// Config holds the adapter process's configuration.
type Config struct {
	LogLevel string          `mapstructure:"log_level"`
	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	ConfigCache struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"config_cache"`
	Metrics struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Adapters []AdapterConfig `mapstructure:"adapters"`
}

func loadConfig() (*Config, error) {
	var cfg Config

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/phasoradapter/")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("no config file found, using defaults and environment variables")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("database.dsn")
	_ = viper.BindEnv("config_cache.dir")
	_ = viper.BindEnv("metrics.port")

	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("database.dsn", "phasoradapter.db")
	viper.SetDefault("config_cache.dir", "./configcache")
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("adapters", []AdapterConfig{})

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Adapters) == 0 {
		return nil, fmt.Errorf("no adapters configured")
	}
	for i, a := range cfg.Adapters {
		if a.Name == "" {
			return nil, fmt.Errorf("adapters[%d]: name is required", i)
		}
		if a.Address == "" {
			return nil, fmt.Errorf("adapters[%d]: address is required", i)
		}
	}

	return &cfg, nil
}
