// internal/config/config.go
package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/b2bshop/gekosync/internal/integrations/geko"
	"github.com/joho/godotenv"
)

type DBConfig struct {
	Driver string `json:"driver"` // sqlite (domyślnie) | postgres | mysql
	DSN    string `json:"dsn,omitempty"`
}

// Główny config aplikacji
type Config struct {
	AutoStart           bool                       `json:"auto_start"`
	SyncIntervalSeconds int                        `json:"sync_interval_seconds"` // heartbeat syncera
	DB                  DBConfig                   `json:"db"`
	Integrations        map[string]json.RawMessage `json:"integrations"` // nazwa -> surowy JSON integracji
}

func LoadOrCreate(path string) (*Config, bool, error) {
	// .env z sekretami (GEKO_API_KEY) — opcjonalny, brak pliku to nie błąd
	_ = godotenv.Load()

	// upewnij się, że katalog istnieje
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			rawGeko, _ := json.Marshal(geko.DefaultConfig())

			cfg := &Config{
				AutoStart:           false,
				SyncIntervalSeconds: 60,
				DB:                  DBConfig{Driver: "sqlite"},
				Integrations: map[string]json.RawMessage{
					"geko": rawGeko,
				},
			}
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("błąd zapisu domyślnego configa: %w", err)
			}
			return cfg, true, nil
		}
		return nil, false, fmt.Errorf("błąd otwierania configa: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, false, fmt.Errorf("błąd parsowania configa: %w", err)
	}
	if cfg.Integrations == nil {
		cfg.Integrations = map[string]json.RawMessage{}
	}
	return &cfg, false, nil
}

func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// Helper do odczytu konkretnej integracji do struktury docelowej
func (c *Config) UnmarshalIntegration(name string, v any) error {
	raw, ok := c.Integrations[name]
	if !ok {
		return fmt.Errorf("brak integracji %q w configu", name)
	}
	return json.Unmarshal(raw, v)
}

// SetIntegration nadpisuje config integracji (np. po zmianie marży z CLI)
func (c *Config) SetIntegration(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.Integrations == nil {
		c.Integrations = map[string]json.RawMessage{}
	}
	c.Integrations[name] = raw
	return nil
}
