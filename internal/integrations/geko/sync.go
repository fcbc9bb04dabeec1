// internal/integrations/geko/sync.go
package geko

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/b2bshop/gekosync/internal/db"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAlreadyRunning — drugi równoległy przebieg na tych samych tabelach
// ścigałby się o kolejność upsertów, więc jest odrzucany od razu.
var ErrAlreadyRunning = errors.New("geko: sync already in progress")

// klucz w tabeli kv wskazujący ostatni zapisany przebieg
const lastRunKey = "geko.last_run_id"

type RunOptions struct {
	Fetch     FetchOptions
	Reconcile ReconcileConfig
}

type SyncService struct {
	db     *gorm.DB
	client *Client
	rec    *Reconciler
	log    zerolog.Logger

	inFlight atomic.Bool
}

func NewSyncService(gdb *gorm.DB, client *Client, log zerolog.Logger) *SyncService {
	return &SyncService{
		db:     gdb,
		client: client,
		rec:    NewReconciler(gdb, log),
		log:    log,
	}
}

// Run wykonuje jeden pełny przebieg: fetch → parse → normalize → reconcile.
// Fatalny błąd fetchu/parsowania przerywa przed jakimkolwiek zapisem do
// katalogu. Marża i reszta konfiguracji idzie przez opts — żadnego
// mutowalnego stanu współdzielonego między przebiegami.
func (s *SyncService) Run(ctx context.Context, opts RunOptions) (*RunStats, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer s.inFlight.Store(false)

	stats := &RunStats{RunID: uuid.NewString(), StartedAt: time.Now()}

	raw, err := s.client.FetchFeed(ctx, opts.Fetch)
	if err != nil {
		s.finishRun(stats, err)
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	s.log.Info().Int("bytes", len(raw)).Msg("geko: feed pobrany")

	root, err := ParseDocument(raw)
	if err != nil {
		s.finishRun(stats, err)
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	products, fs := ProcessFeed(root, time.Now())
	stats.FeedStats = fs
	s.log.Info().
		Int("records", fs.TotalRecords).
		Int("accepted", fs.Parsed).
		Int("missing_identifier", fs.MissingIdentifier).
		Int("missing_price", fs.MissingPrice).
		Int("missing_stock", fs.MissingStock).
		Msg("geko: feed znormalizowany")

	stats.ReconcileStats = s.rec.Reconcile(ctx, products, opts.Reconcile)

	s.finishRun(stats, nil)
	return stats, nil
}

// finishRun domyka znaczniki czasu i zapisuje wiersz sync_runs (best-effort —
// panel czyta stąd historię przebiegów).
func (s *SyncService) finishRun(stats *RunStats, runErr error) {
	stats.FinishedAt = time.Now()

	row := db.SyncRun{
		ID:                stats.RunID,
		StartedAt:         stats.StartedAt,
		FinishedAt:        stats.FinishedAt,
		TotalRecords:      stats.TotalRecords,
		Parsed:            stats.Parsed,
		MissingIdentifier: stats.MissingIdentifier,
		MissingPrice:      stats.MissingPrice,
		MissingStock:      stats.MissingStock,
		ParseFailures:     stats.ParseFailures,
		Created:           stats.Created,
		Updated:           stats.Updated,
		PricesWritten:     stats.PricesWritten,
		StocksWritten:     stats.StocksWritten,
		Errors:            stats.Errors,
		SuccessRate:       stats.SuccessRate(),
	}
	if runErr != nil {
		row.LastError = runErr.Error()
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.log.Warn().Err(err).Str("run_id", stats.RunID).Msg("nie zapisano sync_runs")
		return
	}
	_ = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "k"}},
		DoUpdates: clause.AssignmentColumns([]string{"v"}),
	}).Create(&db.KV{K: lastRunKey, V: stats.RunID}).Error
}

// LastRun zwraca ostatni zapisany przebieg: najpierw po wskaźniku z kv,
// przy jego braku po started_at. Nil gdy historii jeszcze nie ma.
func LastRun(gdb *gorm.DB) (*db.SyncRun, error) {
	var run db.SyncRun

	var kv db.KV
	switch err := gdb.First(&kv, "k = ?", lastRunKey).Error; {
	case err == nil && kv.V != "":
		err = gdb.First(&run, "id = ?", kv.V).Error
		if err == nil {
			return &run, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// wskaźnik wisi w powietrzu — spadnij na porządek czasowy
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if err := gdb.Order("started_at DESC").First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
