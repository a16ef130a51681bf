package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// Driver selects the entry of Databases used at startup.
	Driver string `json:"driver"`
	// Provider selects the entry of Providers used for responses; empty
	// means the deterministic fallback responder.
	Provider string `json:"provider"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// Load reads configuration from the provided path. An empty path falls back
// to the MINDSCOPE_CONFIG environment variable, then to config.json.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MINDSCOPE_CONFIG")
	}
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.BasicConfig.Driver == "" {
		cfg.BasicConfig.Driver = "sqlite"
	}
	dbCfg, ok := cfg.Databases[cfg.BasicConfig.Driver]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", cfg.BasicConfig.Driver)
	}
	if cfg.BasicConfig.Driver == "sqlite" || cfg.BasicConfig.Driver == "sqlite3" {
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be configured")
		}
		if !filepath.IsAbs(dbCfg.DSN) && dbCfg.DSN != ":memory:" {
			dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
			cfg.Databases[cfg.BasicConfig.Driver] = dbCfg
		}
	}

	return &cfg, nil
}
