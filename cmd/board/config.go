package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// APIConfig configures the board RPC server.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Config is the top-level board daemon configuration.
type Config struct {
	Datadir    string    `mapstructure:"datadir"`
	SigningKey string    `mapstructure:"signingKey"`
	Log        LogConfig `mapstructure:"log"`
	API        APIConfig `mapstructure:"api"`
}

// loadConfig parses flags and environment variables (BOARD_* prefix) into
// a Config, following the same viper/pflag wiring as the davinci sequencer.
func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("datadir", "./board-data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 9090)

	flag.String("datadir", v.GetString("datadir"), "directory holding the board's persistent store")
	flag.String("signingKey", "", "hex-encoded private key the board signs checkpoints with (required)")
	flag.String("logLevel", v.GetString("log.level"), "log level (debug, info, warn, error)")
	flag.String("logOutput", v.GetString("log.output"), "log output (stdout, stderr, or a file path)")
	flag.String("apiHost", v.GetString("api.host"), "board RPC listen host")
	flag.Int("apiPort", v.GetInt("api.port"), "board RPC listen port")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEvery flag can also be set via a BOARD_ prefixed environment variable named after its config key, "+
			"e.g. --apiPort (api.port) becomes BOARD_API_PORT.\n")
	}
	flag.Parse()

	v.SetEnvPrefix("BOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("datadir", flag.Lookup("datadir")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("signingKey", flag.Lookup("signingKey")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log.level", flag.Lookup("logLevel")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log.output", flag.Lookup("logOutput")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("api.host", flag.Lookup("apiHost")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("api.port", flag.Lookup("apiPort")); err != nil {
		return nil, err
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.SigningKey == "" {
		return fmt.Errorf("signingKey is required")
	}
	if cfg.API.Port <= 0 {
		return fmt.Errorf("api.port must be positive, got %d", cfg.API.Port)
	}
	return nil
}
