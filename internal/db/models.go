// internal/db/models.go
package db

import "time"

// products — lokalny katalog. Pola opisowe nadpisuje sync,
// flagę Active zmienia wyłącznie panel admina.
type CatalogProduct struct {
	Identifier       string `gorm:"primaryKey;size:32"` // EAN lub kod dostawcy
	Name             string
	Brand            string
	ShortDescription string `gorm:"type:text"`
	LongDescription  string `gorm:"type:text"`
	Category         string `gorm:"index"`
	Active           bool   `gorm:"default:true"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// supplier_snapshots — ostatni stan produktu u dostawcy (cache, nie historia).
// Nadpisywany w całości przy każdym syncu.
type SupplierSnapshot struct {
	Identifier    string `gorm:"primaryKey;size:32"`
	SupplierPrice *float64
	SupplierStock *int
	RawRecord     string `gorm:"type:text"` // oryginalny XML rekordu, do audytu
	LastSyncedAt  time.Time
}

// price_lists
type PriceList struct {
	Name      string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

// price_records — jedna cena na (produkt, cennik). Sync pisze tylko do "customer".
type PriceRecord struct {
	Identifier    string `gorm:"primaryKey;size:32"`
	PriceListName string `gorm:"primaryKey;size:64"`
	SellPrice     float64
	UpdatedAt     time.Time
}

// stock_records — stan per wariant; sync używa wariantu "<identifier>-default".
type StockRecord struct {
	VariantID  string `gorm:"primaryKey;size:64"`
	Identifier string `gorm:"index;size:32"`
	Quantity   int
	UpdatedAt  time.Time
}

// categories — słownik kategorii, FirstOrCreate przy syncu
type Category struct {
	Name      string `gorm:"primaryKey;size:128"`
	CreatedAt time.Time
}

// product_images — (identifier, url) unikalne, żeby powtórny sync nie dublował wierszy
type ProductImage struct {
	ID         uint   `gorm:"primaryKey"`
	Identifier string `gorm:"size:32;uniqueIndex:uniq_image_ident_url"`
	URL        string `gorm:"size:512;uniqueIndex:uniq_image_ident_url"`
	IsPrimary  bool
	CreatedAt  time.Time
}

// sync_runs — statystyki każdego przebiegu, do odczytu w panelu
type SyncRun struct {
	ID                string `gorm:"primaryKey;size:36"`
	StartedAt         time.Time
	FinishedAt        time.Time
	TotalRecords      int
	Parsed            int
	MissingIdentifier int
	MissingPrice      int
	MissingStock      int
	ParseFailures     int
	Created           int
	Updated           int
	PricesWritten     int
	StocksWritten     int
	Errors            int
	SuccessRate       float64
	LastError         string `gorm:"type:text"`
}

type KV struct {
	K string `gorm:"primaryKey"`
	V string
}
