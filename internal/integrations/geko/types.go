// internal/integrations/geko/types.go
package geko

import "time"

// CanonicalProduct to znormalizowany rekord feedu — żyje tylko w obrębie
// jednego przebiegu, do bazy trafia przez reconciler.
type CanonicalProduct struct {
	Identifier       string // EAN (8-14 cyfr) albo kod dostawcy (5-20 znaków)
	Name             string
	Brand            string
	ShortDescription string
	LongDescription  string
	Category         string
	ImageURL         string
	SupplierPrice    *float64 // nil = brak ceny w feedzie
	SupplierStock    *int     // nil = brak stanu w feedzie
	RawRecord        string   // oryginalny XML rekordu, trzymany do audytu
	ObservedAt       time.Time
}

// FeedStats — liczniki etapu normalizacji.
type FeedStats struct {
	TotalRecords      int
	Parsed            int
	MissingIdentifier int
	MissingPrice      int
	MissingStock      int
	ParseFailures     int
}

// ReconcileStats — liczniki etapu zapisu.
type ReconcileStats struct {
	Created       int
	Updated       int
	PricesWritten int
	StocksWritten int
	Errors        int
}

func (s *ReconcileStats) add(o ReconcileStats) {
	s.Created += o.Created
	s.Updated += o.Updated
	s.PricesWritten += o.PricesWritten
	s.StocksWritten += o.StocksWritten
	s.Errors += o.Errors
}

// RunStats — zbiorcze statystyki jednego przebiegu.
type RunStats struct {
	RunID string
	FeedStats
	ReconcileStats
	StartedAt  time.Time
	FinishedAt time.Time
}

func (s *RunStats) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// SuccessRate = (total - błędy) / total; pusty feed liczy się jako 1.0.
func (s *RunStats) SuccessRate() float64 {
	if s.TotalRecords == 0 {
		return 1
	}
	bad := s.ParseFailures + s.Errors
	return float64(s.TotalRecords-bad) / float64(s.TotalRecords)
}
