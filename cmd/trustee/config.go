package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// ElectionConfig describes the election this trustee participates in.
// TrusteePKs and ManagerPK are hex-encoded Ethereum public keys; position
// indexes into TrusteePKs to identify this trustee.
type ElectionConfig struct {
	SessionID   string   `mapstructure:"sessionId"`
	TrusteePKs  []string `mapstructure:"trusteePks"`
	ManagerPK   string   `mapstructure:"managerPk"`
	Threshold   int      `mapstructure:"threshold"`
	GroupParams string   `mapstructure:"groupParams"`
	MaxValue    int64    `mapstructure:"maxValue"`
	ShuffleRounds int    `mapstructure:"shuffleRounds"`
}

// Config is the top-level trustee daemon configuration.
type Config struct {
	Datadir     string         `mapstructure:"datadir"`
	SigningKey  string         `mapstructure:"signingKey"`
	Position    int            `mapstructure:"position"`
	BoardURL    string         `mapstructure:"boardUrl"`
	BoardID     string         `mapstructure:"boardId"`
	PollMs      int            `mapstructure:"pollMs"`
	Log         LogConfig      `mapstructure:"log"`
	Election    ElectionConfig `mapstructure:"election"`
}

func loadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("datadir", "./trustee-data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("pollMs", 2000)
	v.SetDefault("election.groupParams", "bn254-g1")
	v.SetDefault("election.maxValue", 256)
	v.SetDefault("election.shuffleRounds", 8)

	flag.String("datadir", v.GetString("datadir"), "directory holding this trustee's local board mirror")
	flag.String("signingKey", "", "hex-encoded private key this trustee signs statements with (required)")
	flag.Int("position", -1, "this trustee's signer_position, 0-indexed (required)")
	flag.String("boardUrl", "", "base URL of the board RPC server (required)")
	flag.String("boardId", "", "UUID of the board to drive (required)")
	flag.Int("pollMs", v.GetInt("pollMs"), "board polling interval in milliseconds")
	flag.String("logLevel", v.GetString("log.level"), "log level (debug, info, warn, error)")
	flag.String("logOutput", v.GetString("log.output"), "log output (stdout, stderr, or a file path)")
	flag.String("sessionId", "", "election session identifier (required)")
	flag.StringSlice("trusteePks", nil, "comma-separated hex-encoded trustee public keys, ordered by signer_position (required)")
	flag.String("managerPk", "", "hex-encoded protocol manager public key (required)")
	flag.Int("threshold", 0, "DKG/tally threshold t (required)")
	flag.String("groupParams", v.GetString("election.groupParams"), "group parameter identifier")
	flag.Int64("maxValue", v.GetInt64("election.maxValue"), "upper bound for per-slot discrete-log recovery during tally decryption (must cover the widest raw-ballot slot radix; 256 covers raw write-in bytes)")
	flag.Int("shuffleRounds", v.GetInt("election.shuffleRounds"), "number of shuffle rounds per tally batch")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEvery flag can also be set via a TRUSTEE_ prefixed environment variable, "+
			"e.g. --boardUrl becomes TRUSTEE_BOARDURL.\n")
	}
	flag.Parse()

	v.SetEnvPrefix("TRUSTEE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	binds := map[string]string{
		"datadir":                "datadir",
		"signingKey":             "signingKey",
		"position":               "position",
		"boardUrl":               "boardUrl",
		"boardId":                "boardId",
		"pollMs":                 "pollMs",
		"log.level":              "logLevel",
		"log.output":             "logOutput",
		"election.sessionId":     "sessionId",
		"election.trusteePks":    "trusteePks",
		"election.managerPk":     "managerPk",
		"election.threshold":     "threshold",
		"election.groupParams":   "groupParams",
		"election.maxValue":      "maxValue",
		"election.shuffleRounds": "shuffleRounds",
	}
	for viperKey, flagName := range binds {
		if err := v.BindPFlag(viperKey, flag.Lookup(flagName)); err != nil {
			return nil, err
		}
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
	if cfg.Position < 0 {
		return fmt.Errorf("position must be >= 0")
	}
	if cfg.BoardURL == "" {
		return fmt.Errorf("boardUrl is required")
	}
	if _, err := uuid.Parse(cfg.BoardID); err != nil {
		return fmt.Errorf("boardId: %w", err)
	}
	if cfg.Election.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if len(cfg.Election.TrusteePKs) == 0 {
		return fmt.Errorf("trusteePks is required")
	}
	if cfg.Position >= len(cfg.Election.TrusteePKs) {
		return fmt.Errorf("position %d out of range for %d trustees", cfg.Position, len(cfg.Election.TrusteePKs))
	}
	if cfg.Election.ManagerPK == "" {
		return fmt.Errorf("managerPk is required")
	}
	if cfg.Election.Threshold <= 0 || cfg.Election.Threshold > len(cfg.Election.TrusteePKs) {
		return fmt.Errorf("threshold must be in (0, %d]", len(cfg.Election.TrusteePKs))
	}
	return nil
}
