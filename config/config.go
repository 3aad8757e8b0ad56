package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"metaverse/crypto"

	"github.com/BurntSushi/toml"
)

// DefaultDelegationTimeoutSeconds bounds how far a delegation timestamp may
// drift from the node clock, in either direction.
const DefaultDelegationTimeoutSeconds = 300

type Config struct {
	RPCAddress               string `toml:"RPCAddress"`
	DataDir                  string `toml:"DataDir"`
	NetworkName              string `toml:"NetworkName"`
	OwnerKeystorePath        string `toml:"OwnerKeystorePath"`
	DelegationTimeoutSeconds uint64 `toml:"DelegationTimeoutSeconds"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "mv-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./mv-data"
	}
	if cfg.DelegationTimeoutSeconds == 0 {
		cfg.DelegationTimeoutSeconds = DefaultDelegationTimeoutSeconds
	}

	return cfg, nil
}

// DelegationTimeout returns the configured delegation validity window as a
// duration.
func (c *Config) DelegationTimeout() time.Duration {
	return time.Duration(c.DelegationTimeoutSeconds) * time.Second
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:               ":8080",
		DataDir:                  "./mv-data",
		NetworkName:              "mv-local",
		DelegationTimeoutSeconds: DefaultDelegationTimeoutSeconds,
	}
	cfg.OwnerKeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
