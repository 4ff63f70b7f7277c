// Package config loads this kernel's unified configuration from a YAML file
// plus environment-variable overrides, the way a deployed node picks its
// network, storage, and logging settings.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/runkernel/kernel/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a kernel node.
type Config struct {
	Chain struct {
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		Memory         bool     `mapstructure:"memory" json:"memory"` // use the in-process fake chain instead of libp2p
	} `mapstructure:"chain" json:"chain"`

	Cache struct {
		Dir        string `mapstructure:"dir" json:"dir"`
		MaxEntries int    `mapstructure:"max_entries" json:"max_entries"`
	} `mapstructure:"cache" json:"cache"`

	Purse struct {
		FeeratePerByte int64 `mapstructure:"feerate_per_byte" json:"feerate_per_byte"`
	} `mapstructure:"purse" json:"purse"`

	Owner struct {
		MnemonicEnvVar string `mapstructure:"mnemonic_env_var" json:"mnemonic_env_var"`
	} `mapstructure:"owner" json:"owner"`

	Queue struct {
		Backlog int `mapstructure:"backlog" json:"backlog"`
	} `mapstructure:"queue" json:"queue"`

	Trust struct {
		TrustAll bool     `mapstructure:"trust_all" json:"trust_all"`
		TxIDs    []string `mapstructure:"txids" json:"txids"`
	} `mapstructure:"trust" json:"trust"`

	ClientMode bool `mapstructure:"client_mode" json:"client_mode"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// Defaults mirrors the zero-config single-node development setup.
func Defaults() Config {
	var c Config
	c.Chain.ListenAddr = "/ip4/0.0.0.0/tcp/0"
	c.Chain.DiscoveryTag = "runkernel"
	c.Chain.Memory = true
	c.Cache.Dir = ".runkernel/cache"
	c.Cache.MaxEntries = 10_000
	c.Purse.FeeratePerByte = 1
	c.Owner.MnemonicEnvVar = "RUNKERNEL_MNEMONIC"
	c.Queue.Backlog = 64
	c.Trust.TrustAll = true
	c.Logging.Level = "info"
	return c
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config = Defaults()

// Load reads cmd/config/default.yaml (and, if present, an env-named overlay)
// then merges RUNKERNEL_-prefixed environment variables, the way a deployed
// node layers environment-specific overrides on top of its base config.
func Load(env string) (*Config, error) {
	_ = godotenv.Load() // best-effort: a missing .env is not an error

	AppConfig = Defaults()
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("RUNKERNEL")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the RUNKERNEL_ENV environment
// variable to select an overlay file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("RUNKERNEL_ENV", ""))
}
