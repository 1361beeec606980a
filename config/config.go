package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"paysplit/crypto"
)

// Config carries the daemon settings persisted as TOML.
type Config struct {
	RPCAddress      string   `toml:"RPCAddress"`
	OpsAddress      string   `toml:"OpsAddress"`
	DataDir         string   `toml:"DataDir"`
	JournalPath     string   `toml:"JournalPath,omitempty"`
	Env             string   `toml:"Env"`
	LogLevel        string   `toml:"LogLevel"`
	ReleasePolicy   string   `toml:"ReleasePolicy"`
	PausedModules   []string `toml:"PausedModules"`
	OperatorAddress string   `toml:"OperatorAddress"`
	KeystorePath    string   `toml:"KeystorePath"`
	RosterSeedPath  string   `toml:"RosterSeedPath,omitempty"`
	Quota           Quota    `toml:"Quota"`
}

// Quota bounds public deposits per sender address and epoch. Zero values
// disable the corresponding limit.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxAmountPerEpoch   string `toml:"MaxAmountPerEpoch,omitempty"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// Load reads the configuration from the given path, creating a default file
// and bootstrapping the operator keystore on first boot.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	for _, undecoded := range meta.Undecoded() {
		return nil, fmt.Errorf("config file %s contains unknown key %s", path, undecoded.String())
	}

	applyDefaults(cfg)
	if err := ensureOperator(path, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.OpsAddress) == "" {
		cfg.OpsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./paysplit-data"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "local"
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.ReleasePolicy) == "" {
		cfg.ReleasePolicy = "strict"
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
}

// ensureOperator guarantees a keystore exists and that the configured operator
// address matches the stored key, persisting any bootstrap back to disk.
func ensureOperator(configPath string, cfg *Config) error {
	keystorePath := cfg.KeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	var key *crypto.PrivateKey
	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		generated, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if saveErr := crypto.SaveToKeystore(keystorePath, generated, ""); saveErr != nil {
			return saveErr
		}
		key = generated
	} else if err != nil {
		return err
	}

	dirty := false
	if cfg.KeystorePath != keystorePath {
		cfg.KeystorePath = keystorePath
		dirty = true
	}
	if strings.TrimSpace(cfg.OperatorAddress) == "" {
		if key == nil {
			loaded, loadErr := crypto.LoadFromKeystore(keystorePath, "")
			if loadErr != nil {
				return loadErr
			}
			key = loaded
		}
		cfg.OperatorAddress = key.PubKey().Address().String()
		dirty = true
	}
	if dirty {
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file alongside a
// freshly generated operator keystore.
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
		RPCAddress:      ":8080",
		OpsAddress:      ":9090",
		DataDir:         "./paysplit-data",
		Env:             "local",
		LogLevel:        "info",
		ReleasePolicy:   "strict",
		PausedModules:   []string{},
		OperatorAddress: key.PubKey().Address().String(),
		KeystorePath:    keystorePath,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "operator.keystore")
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

// JournalFile resolves the bbolt journal location, defaulting into DataDir.
func (c *Config) JournalFile() string {
	if strings.TrimSpace(c.JournalPath) != "" {
		return c.JournalPath
	}
	return filepath.Join(c.DataDir, "journal.db")
}

// Operator decodes the configured operator address.
func (c *Config) Operator() ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.OperatorAddress))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid OperatorAddress: %w", err)
	}
	return addr.Array(), nil
}
