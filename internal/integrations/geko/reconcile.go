// internal/integrations/geko/reconcile.go
package geko

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/b2bshop/gekosync/internal/db"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReconcileConfig struct {
	BatchSize     int
	ApplyMargin   bool
	UpdateStock   bool
	MarginPercent float64
}

type Reconciler struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewReconciler(gdb *gorm.DB, log zerolog.Logger) *Reconciler {
	return &Reconciler{db: gdb, log: log}
}

// SellPrice = cena dostawcy * (1 + marża/100), zaokrąglona do grosza.
// Liczone jako price*(100+margin) i dzielone po zaokrągleniu, żeby 10.00
// przy 30% dawało równe 13.00, a nie artefakt floata.
func SellPrice(supplierPrice, marginPercent float64) float64 {
	return math.Round(supplierPrice*(100+marginPercent)) / 100
}

// Reconcile zapisuje produkty batchami, sekwencyjnie. Anulowanie contextu
// jest honorowane między batchami.
func (r *Reconciler) Reconcile(ctx context.Context, products []CanonicalProduct, cfg ReconcileConfig) ReconcileStats {
	var stats ReconcileStats
	size := cfg.BatchSize
	if size <= 0 {
		size = 100
	}

	for start := 0; start < len(products); start += size {
		if err := ctx.Err(); err != nil {
			r.log.Warn().Err(err).Int("done", start).Int("total", len(products)).
				Msg("reconcile przerwany między batchami")
			return stats
		}
		end := min(start+size, len(products))
		r.reconcileBatch(products[start:end], cfg, &stats)
	}
	return stats
}

// reconcileBatch: jedna transakcja na batch, savepoint na rekord — błąd
// jednego produktu cofa tylko jego savepoint, reszta batcha się commituje.
func (r *Reconciler) reconcileBatch(batch []CanonicalProduct, cfg ReconcileConfig, stats *ReconcileStats) {
	tx := r.db.Begin()
	if tx.Error != nil {
		r.log.Error().Err(tx.Error).Int("n", len(batch)).Msg("begin batch tx failed")
		stats.Errors += len(batch)
		return
	}
	defer tx.Rollback()

	// liczniki batcha osobno — nieudany commit cofa całą jego pracę, więc do
	// statystyk przebiegu nie może z niego trafić nic poza błędami
	var bs ReconcileStats
	for idx := range batch {
		p := &batch[idx]
		sp := fmt.Sprintf("rec_%d", idx)
		tx.SavePoint(sp)
		if err := r.syncOne(tx, p, cfg, &bs); err != nil {
			tx.RollbackTo(sp)
			bs.Errors++
			r.log.Error().Err(err).Str("identifier", p.Identifier).Msg("rekord pominięty")
		}
	}

	if err := tx.Commit().Error; err != nil {
		r.log.Error().Err(err).Int("n", len(batch)).Msg("batch commit failed")
		stats.Errors += len(batch)
		return
	}
	stats.add(bs)
}

// syncOne: produkt → snapshot → cena → stan → relacje. Liczniki dopiero na
// końcu, żeby rollback do savepointu nie zostawiał fałszywych statystyk.
func (r *Reconciler) syncOne(tx *gorm.DB, p *CanonicalProduct, cfg ReconcileConfig, stats *ReconcileStats) error {
	if strings.TrimSpace(p.Identifier) == "" {
		return errors.New("pusty identifier")
	}
	now := time.Now()

	var created, priceWritten, stockWritten bool

	// 1) produkt: insert przy pierwszym syncu, potem update pól opisowych.
	// Flaga "active" zostaje nietknięta — nią zarządza admin.
	var cnt int64
	if err := tx.Model(&db.CatalogProduct{}).
		Where("identifier = ?", p.Identifier).Count(&cnt).Error; err != nil {
		return fmt.Errorf("product lookup: %w", err)
	}
	if cnt == 0 {
		prod := db.CatalogProduct{
			Identifier:       p.Identifier,
			Name:             p.Name,
			Brand:            p.Brand,
			ShortDescription: p.ShortDescription,
			LongDescription:  p.LongDescription,
			Category:         p.Category,
			Active:           true,
		}
		if err := tx.Create(&prod).Error; err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		created = true
	} else {
		if err := tx.Model(&db.CatalogProduct{}).
			Where("identifier = ?", p.Identifier).
			Updates(map[string]any{
				"name":              p.Name,
				"brand":             p.Brand,
				"short_description": p.ShortDescription,
				"long_description":  p.LongDescription,
				"category":          p.Category,
				"updated_at":        now,
			}).Error; err != nil {
			return fmt.Errorf("update product: %w", err)
		}
	}

	// 2) snapshot dostawcy — pełne nadpisanie, to cache a nie historia
	snap := db.SupplierSnapshot{
		Identifier:    p.Identifier,
		SupplierPrice: p.SupplierPrice,
		SupplierStock: p.SupplierStock,
		RawRecord:     p.RawRecord,
		LastSyncedAt:  now,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns([]string{"supplier_price", "supplier_stock", "raw_record", "last_synced_at"}),
	}).Create(&snap).Error; err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	// 3) cena klienta — tylko gdy feed dał cenę; brak ceny nie kasuje starej
	if cfg.ApplyMargin && p.SupplierPrice != nil {
		pl := db.PriceList{Name: db.CustomerPriceList}
		if err := tx.Where(&db.PriceList{Name: db.CustomerPriceList}).FirstOrCreate(&pl).Error; err != nil {
			return fmt.Errorf("price list: %w", err)
		}
		row := db.PriceRecord{
			Identifier:    p.Identifier,
			PriceListName: db.CustomerPriceList,
			SellPrice:     SellPrice(*p.SupplierPrice, cfg.MarginPercent),
			UpdatedAt:     now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identifier"}, {Name: "price_list_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"sell_price", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert price: %w", err)
		}
		priceWritten = true
	}

	// 4) stan na wariancie domyślnym — last-write-wins, brak stanu = 0
	if cfg.UpdateStock {
		qty := 0
		if p.SupplierStock != nil {
			qty = *p.SupplierStock
		}
		row := db.StockRecord{
			VariantID:  p.Identifier + "-default",
			Identifier: p.Identifier,
			Quantity:   qty,
			UpdatedAt:  now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "variant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert stock: %w", err)
		}
		stockWritten = true
	}

	// 5) relacje: kategoria best-effort, obrazek tylko gdy (identifier, url)
	// jeszcze nie istnieje — powtórny sync nie dubluje wierszy
	if p.Category != "" {
		cat := db.Category{Name: p.Category}
		if err := tx.Where(&db.Category{Name: p.Category}).FirstOrCreate(&cat).Error; err != nil {
			r.log.Warn().Err(err).Str("identifier", p.Identifier).Msg("kategoria nie zapisana")
		}
	}
	if p.ImageURL != "" {
		var imgCnt int64
		if err := tx.Model(&db.ProductImage{}).
			Where("identifier = ? AND url = ?", p.Identifier, p.ImageURL).
			Count(&imgCnt).Error; err != nil {
			return fmt.Errorf("image lookup: %w", err)
		}
		if imgCnt == 0 {
			img := db.ProductImage{Identifier: p.Identifier, URL: p.ImageURL, IsPrimary: true}
			if err := tx.Create(&img).Error; err != nil {
				return fmt.Errorf("insert image: %w", err)
			}
		}
	}

	if created {
		stats.Created++
	} else {
		stats.Updated++
	}
	if priceWritten {
		stats.PricesWritten++
	}
	if stockWritten {
		stats.StocksWritten++
	}
	return nil
}
