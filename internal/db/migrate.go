package db

import (
	"fmt"
)

// CustomerPriceList to zarezerwowany cennik, do którego pisze sync.
const CustomerPriceList = "customer"

// Migrate tworzy/aktualizuje schemat bazy i dosiewa cennik "customer"
// (idempotentnie — reconciler i tak robi create-if-absent).
func (h *Handle) Migrate() error {
	gdb := h.DB

	if err := gdb.AutoMigrate(
		&CatalogProduct{},
		&SupplierSnapshot{},
		&PriceList{},
		&PriceRecord{},
		&StockRecord{},
		&Category{},
		&ProductImage{},
		&SyncRun{},
		&KV{},
	); err != nil {
		return fmt.Errorf("AutoMigrate error: %w", err)
	}

	pl := PriceList{Name: CustomerPriceList}
	if err := gdb.Where(&PriceList{Name: CustomerPriceList}).FirstOrCreate(&pl).Error; err != nil {
		return fmt.Errorf("seed cennika %q: %w", CustomerPriceList, err)
	}

	return nil
}
