// internal/integrations/geko/normalize.go
package geko

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var reDigits = regexp.MustCompile(`\D+`)

func cleanEAN(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return reDigits.ReplaceAllString(s, "")
}

// Tabele aliasów — feed przeszedł kilka rewizji i te same pola bywają pod
// różnymi nazwami. Kolejność = priorytet, wygrywa pierwsze trafienie.
// Dopisując nowy alias nie ruszaj logiki, tylko tabelę.
var identifierPaths = [][]string{
	{"sizes", "size", "code"},
	{"size", "code"},
	{"code"},
	{"ean"},
	{"barcode"},
	{"gtin"},
	{"sku"},
	{"id"},
	{"symbol"},
	{"index"},
}

var priceNodePaths = [][]string{
	{"price"},
	{"sizes", "size", "price"},
	{"size", "price"},
}

var priceAliases = []string{
	"price_gross", "gross_price", "cena_brutto", "cena",
	"price_net", "net_price", "cena_netto", "suggested_price", "srp",
}

var stockNodePaths = [][]string{
	{"sizes", "size", "stock"},
	{"size", "stock"},
	{"stock"},
}

var stockFields = []string{"quantity", "qty", "amount", "available", "value"}

var stockAliases = []string{
	"quantity", "qty", "stan", "availability", "stock_quantity", "in_stock",
}

var nameFields = [][]string{
	{"description", "name"}, {"name"}, {"title"}, {"nazwa"},
}

var brandFields = [][]string{
	{"brand"}, {"producer"}, {"manufacturer"}, {"vendor"}, {"marka"},
}

var shortDescFields = [][]string{
	{"description", "short_desc"}, {"short_description"}, {"short_desc"}, {"description_short"},
}

var longDescFields = [][]string{
	{"description", "long_desc"}, {"long_description"}, {"long_desc"}, {"description"}, {"opis"},
}

var categoryFields = [][]string{
	{"category", "name"}, {"category"}, {"group"}, {"kategoria"},
}

var imageFields = [][]string{
	{"images", "image"}, {"image"}, {"photo"}, {"img_url"}, {"picture"},
}

// nodeAt schodzi po pierwszych dzieciach; nil gdy ścieżka się urywa.
func nodeAt(n *Node, path []string) *Node {
	cur := n
	for _, seg := range path {
		cur = cur.Child(seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// valueAt — ostatni segment może być atrybutem lub elementem.
func valueAt(n *Node, path []string) string {
	cur := n
	for i := 0; i < len(path)-1; i++ {
		cur = cur.Child(path[i])
		if cur == nil {
			return ""
		}
	}
	return cur.Value(path[len(path)-1])
}

func firstValue(rec *Node, paths [][]string) string {
	for _, p := range paths {
		if v := valueAt(rec, p); v != "" {
			return v
		}
	}
	return ""
}

// extractIdentifier: kod rozmiaru → "code" → stare aliasy. Kandydat po
// odcięciu nie-cyfr o długości 8-14 to EAN; inaczej surowy 5-20 znaków
// przechodzi jako kod dostawcy.
func extractIdentifier(rec *Node) string {
	for _, path := range identifierPaths {
		cand := valueAt(rec, path)
		if cand == "" {
			continue
		}
		if id := acceptIdentifier(cand); id != "" {
			return id
		}
	}
	return ""
}

func acceptIdentifier(cand string) string {
	cand = strings.TrimSpace(cand)
	digits := cleanEAN(cand)
	if l := len(digits); l >= 8 && l <= 14 {
		return digits
	}
	if isSupplierCode(cand) {
		return cand
	}
	return ""
}

func isSupplierCode(s string) bool {
	if len(s) < 5 || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// parseDecimal — przecinek jako separator dziesiętny jest w feedach normą.
func parseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// extractPrice: obiekt ceny (gross przed net) → cena przy rozmiarze → aliasy.
// Akceptujemy tylko dodatnie wartości; brak ceny nie odrzuca rekordu.
func extractPrice(rec *Node) *float64 {
	for _, path := range priceNodePaths {
		p := nodeAt(rec, path)
		if p == nil {
			continue
		}
		for _, field := range []string{"gross", "net"} {
			if v, ok := parseDecimal(p.Value(field)); ok && v > 0 {
				return &v
			}
		}
		// wariant <price>12,30</price> bez gross/net
		if v, ok := parseDecimal(p.Text); ok && v > 0 {
			return &v
		}
	}
	for _, alias := range priceAliases {
		if v, ok := parseDecimal(rec.Value(alias)); ok && v > 0 {
			return &v
		}
	}
	return nil
}

// extractStock: stock przy rozmiarze (różne nazwy pod-pola) → aliasy.
// Pierwsza nieujemna liczba wygrywa.
func extractStock(rec *Node) *int {
	for _, path := range stockNodePaths {
		s := nodeAt(rec, path)
		if s == nil {
			continue
		}
		for _, field := range stockFields {
			if v, ok := parseQty(s.Value(field)); ok {
				return &v
			}
		}
		if v, ok := parseQty(s.Text); ok {
			return &v
		}
	}
	for _, alias := range stockAliases {
		if v, ok := parseQty(rec.Value(alias)); ok {
			return &v
		}
	}
	return nil
}

// parseQty — stany bywają zapisane jako "12.00"
func parseQty(s string) (int, bool) {
	f, ok := parseDecimal(s)
	if !ok || f < 0 {
		return 0, false
	}
	return int(f), true
}

func extractImage(rec *Node) string {
	for _, p := range imageFields {
		n := nodeAt(rec, p)
		if n == nil {
			continue
		}
		if u := n.Attr("url"); u != "" {
			return u
		}
		if n.Text != "" {
			return n.Text
		}
	}
	return ""
}

// normalizeRecord buduje produkt kanoniczny; nil gdy rekord nie ma żadnego
// akceptowalnego identyfikatora.
func normalizeRecord(rec *Node, now time.Time) *CanonicalProduct {
	id := extractIdentifier(rec)
	if id == "" {
		return nil
	}
	return &CanonicalProduct{
		Identifier:       id,
		Name:             firstValue(rec, nameFields),
		Brand:            firstValue(rec, brandFields),
		ShortDescription: firstValue(rec, shortDescFields),
		LongDescription:  firstValue(rec, longDescFields),
		Category:         firstValue(rec, categoryFields),
		ImageURL:         extractImage(rec),
		SupplierPrice:    extractPrice(rec),
		SupplierStock:    extractStock(rec),
		RawRecord:        rec.XML(),
		ObservedAt:       now,
	}
}

// normalizeSafe łapie panic z pojedynczego rekordu — jeden zepsuty wpis
// nie może położyć całego batcha.
func normalizeSafe(rec *Node, now time.Time) (p *CanonicalProduct, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("record normalize panic: %v", r)
		}
	}()
	return normalizeRecord(rec, now), nil
}

// ProcessFeed przegania wszystkie rekordy przez normalizację i zbiera liczniki.
// Zwraca tylko zaakceptowane produkty.
func ProcessFeed(root *Node, now time.Time) ([]CanonicalProduct, FeedStats) {
	var stats FeedStats
	records := ExtractRecords(root)
	stats.TotalRecords = len(records)

	out := make([]CanonicalProduct, 0, len(records))
	for _, rec := range records {
		p, err := normalizeSafe(rec, now)
		if err != nil {
			stats.ParseFailures++
			continue
		}
		if p == nil {
			stats.MissingIdentifier++
			continue
		}
		if p.SupplierPrice == nil {
			stats.MissingPrice++
		}
		if p.SupplierStock == nil {
			stats.MissingStock++
		}
		stats.Parsed++
		out = append(out, *p)
	}
	return out, stats
}
