// internal/integrations/geko/geko.go
package geko

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/b2bshop/gekosync/internal/integrations"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Config struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"` // nadpisywane przez GEKO_API_KEY, jeśli ustawione

	Stream  bool     `json:"stream"`
	Filters []string `json:"filters,omitempty"`
	Exclude []string `json:"exclude,omitempty"`

	MinRequestIntervalMs int `json:"min_request_interval_ms"`
	RequestTimeoutMs     int `json:"request_timeout_ms"`

	BatchSize     int     `json:"batch_size"`
	MarginPercent float64 `json:"margin_percent"`
	ApplyMargin   bool    `json:"apply_margin"`
	UpdateStock   bool    `json:"update_stock"`

	SyncIntervalSec int `json:"sync_interval_sec"`
}

// DefaultConfig — wartości startowe zapisywane do config.json przy pierwszym
// uruchomieniu. Unmarshal nadpisuje tylko podane klucze, więc brakujące
// zachowują domyślne (istotne dla apply_margin/update_stock, które domyślnie
// są włączone).
func DefaultConfig() Config {
	return Config{
		BaseURL:              "https://b2b.geko.pl/en/xmlapi/20/3/utf8",
		MinRequestIntervalMs: 5000,
		RequestTimeoutMs:     60000,
		BatchSize:            100,
		MarginPercent:        30,
		ApplyMargin:          true,
		UpdateStock:          true,
		SyncIntervalSec:      3600,
	}
}

func (c Config) minRequestInterval() time.Duration {
	if c.MinRequestIntervalMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.MinRequestIntervalMs) * time.Millisecond
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeoutMs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c Config) syncInterval() time.Duration {
	if c.SyncIntervalSec <= 0 {
		return time.Hour
	}
	return time.Duration(c.SyncIntervalSec) * time.Second
}

// RunOptionsFor składa opcje jednego przebiegu z configa integracji.
func RunOptionsFor(cfg Config) RunOptions {
	return RunOptions{
		Fetch: FetchOptions{
			Stream:  cfg.Stream,
			Filters: cfg.Filters,
			Exclude: cfg.Exclude,
		},
		Reconcile: ReconcileConfig{
			BatchSize:     cfg.BatchSize,
			ApplyMargin:   cfg.ApplyMargin,
			UpdateStock:   cfg.UpdateStock,
			MarginPercent: cfg.MarginPercent,
		},
	}
}

// Geko to integracja harmonogramowa: pierwszy przebieg od razu, potem ticker.
type Geko struct {
	log zerolog.Logger
	cfg Config
	svc *SyncService

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	cooldown time.Time // po 403 nie próbujemy do tego czasu
}

func (g *Geko) Name() string { return "geko" }

func (g *Geko) Start(ctx context.Context) error {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.log.Info().Str("integration", g.Name()).Msg("start")

	ticker := time.NewTicker(g.cfg.syncInterval())
	defer ticker.Stop()

	// pierwszy przebieg od razu
	g.RunNow()

	for {
		select {
		case <-g.ctx.Done():
			g.log.Info().Str("integration", g.Name()).Msg("stop")
			return nil
		case <-ticker.C:
			g.RunNow()
			ticker.Reset(g.cfg.syncInterval())
		}
	}
}

func (g *Geko) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
}

// RunNow odpala jeden przebieg poza harmonogramem (trigger z CLI/panelu).
// Dzieli single-flight z tickerem, więc nie nałoży się na trwający sync.
func (g *Geko) RunNow() {
	ctx := g.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	g.mu.Lock()
	until := g.cooldown
	g.mu.Unlock()
	if time.Now().Before(until) {
		g.log.Warn().Time("until", until).Msg("geko: cooldown po 403, pomijam przebieg")
		return
	}

	stats, err := g.svc.Run(ctx, RunOptionsFor(g.cfg))
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			g.log.Warn().Msg("geko: poprzedni przebieg jeszcze trwa")
			return
		}
		if errors.Is(err, ErrThrottled) {
			// ban po stronie dostawcy — odpuść kilka kolejnych przebiegów
			g.mu.Lock()
			g.cooldown = time.Now().Add(6 * g.cfg.syncInterval())
			g.mu.Unlock()
		}
		g.log.Error().Err(err).Msg("geko: przebieg zakończony błędem")
		return
	}

	g.log.Info().
		Str("run_id", stats.RunID).
		Int("total", stats.TotalRecords).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("errors", stats.Errors).
		Float64("success_rate", stats.SuccessRate()).
		Dur("took", stats.Duration()).
		Msg("geko: sync OK")
}

func factory(log zerolog.Logger, raw json.RawMessage, gdb *gorm.DB) (integrations.Integration, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if gdb == nil {
		return nil, errors.New("geko: brak uchwytu bazy")
	}
	client := NewClient(cfg, log)
	return &Geko{
		log: log,
		cfg: cfg,
		svc: NewSyncService(gdb, client, log),
	}, nil
}

func init() {
	integrations.Register("geko", factory)
}
