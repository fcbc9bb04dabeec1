package geko

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/b2bshop/gekosync/internal/db"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const feedTwoProducts = `<?xml version="1.0" encoding="utf-8"?>
<geko>
  <products>
    <product>
      <ean>00012345</ean>
      <name>Wiertarka udarowa</name>
      <brand>Geko</brand>
      <category><name>Narzędzia</name></category>
      <price gross="10,00" net="8,13"/>
      <stock><quantity>5</quantity></stock>
      <photo url="https://img.example/1.jpg"/>
    </product>
    <product>
      <ean>00067890</ean>
      <name>Młotek</name>
      <price gross="20,00"/>
      <stock><quantity>3</quantity></stock>
    </product>
  </products>
</geko>`

func newTestSync(t *testing.T, rt roundTripFunc) (*SyncService, *gorm.DB) {
	t.Helper()
	gdb := newTestDB(t)
	client := newFakeClient(t, testClientConfig(), rt)
	return NewSyncService(gdb, client, zerolog.Nop()), gdb
}

func defaultRunOptions() RunOptions {
	return RunOptions{Reconcile: testReconcileConfig()}
}

func TestSyncRunEndToEnd(t *testing.T) {
	svc, gdb := newTestSync(t, func(*http.Request) (*http.Response, error) {
		return xmlResponse(200, feedTwoProducts), nil
	})

	stats, err := svc.Run(context.Background(), defaultRunOptions())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRecords != 2 || stats.Parsed != 2 || stats.Created != 2 || stats.Errors != 0 {
		t.Fatalf("stats=%+v", stats)
	}
	if stats.SuccessRate() != 1 {
		t.Fatalf("success rate=%v", stats.SuccessRate())
	}

	var prod db.CatalogProduct
	if err := gdb.First(&prod, "identifier = ?", "00012345").Error; err != nil {
		t.Fatal(err)
	}
	if prod.Name != "Wiertarka udarowa" || prod.Brand != "Geko" || prod.Category != "Narzędzia" || !prod.Active {
		t.Fatalf("product=%+v", prod)
	}

	var price db.PriceRecord
	if err := gdb.First(&price, "identifier = ?", "00012345").Error; err != nil {
		t.Fatal(err)
	}
	if price.SellPrice != 13.00 {
		t.Fatalf("sell price=%v", price.SellPrice)
	}
	var stock db.StockRecord
	if err := gdb.First(&stock, "variant_id = ?", "00067890-default").Error; err != nil {
		t.Fatal(err)
	}
	if stock.Quantity != 3 {
		t.Fatalf("stock=%+v", stock)
	}

	run, err := LastRun(gdb)
	if err != nil {
		t.Fatal(err)
	}
	if run == nil || run.ID != stats.RunID || run.Created != 2 || run.LastError != "" {
		t.Fatalf("run=%+v", run)
	}
}

// Rekord bez akceptowalnego identyfikatora jest liczony, ale nie zapisywany.
func TestSyncRunSkipsUnidentifiedRecord(t *testing.T) {
	const feed = `<?xml version="1.0"?><geko><products>` +
		`<product><code>AB</code><name>Bez kodu</name></product>` +
		`</products></geko>`
	svc, gdb := newTestSync(t, func(*http.Request) (*http.Response, error) {
		return xmlResponse(200, feed), nil
	})

	stats, err := svc.Run(context.Background(), defaultRunOptions())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalRecords != 1 || stats.Parsed != 0 || stats.MissingIdentifier != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	var cnt int64
	gdb.Model(&db.CatalogProduct{}).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("products=%d", cnt)
	}
}

func TestSyncRunFetchFailure(t *testing.T) {
	svc, gdb := newTestSync(t, func(*http.Request) (*http.Response, error) {
		return xmlResponse(500, "boom"), nil
	})

	if _, err := svc.Run(context.Background(), defaultRunOptions()); err == nil {
		t.Fatal("expected error")
	}

	var cnt int64
	gdb.Model(&db.CatalogProduct{}).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("products=%d", cnt)
	}

	// nieudany przebieg też trafia do historii, z błędem
	run, err := LastRun(gdb)
	if err != nil {
		t.Fatal(err)
	}
	if run == nil || run.LastError == "" {
		t.Fatalf("run=%+v", run)
	}
}

func TestSyncRunParseFailure(t *testing.T) {
	svc, _ := newTestSync(t, func(*http.Request) (*http.Response, error) {
		return xmlResponse(200, `<?xml version="1.0"?><geko><products>`), nil
	})

	_, err := svc.Run(context.Background(), defaultRunOptions())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

// Wskaźnik w kv prowadzi do ostatniego przebiegu; bez niego status
// spada na porządek czasowy.
func TestLastRunResolvesThroughPointer(t *testing.T) {
	svc, gdb := newTestSync(t, func(*http.Request) (*http.Response, error) {
		return xmlResponse(200, feedTwoProducts), nil
	})

	if _, err := svc.Run(context.Background(), defaultRunOptions()); err != nil {
		t.Fatal(err)
	}
	second, err := svc.Run(context.Background(), defaultRunOptions())
	if err != nil {
		t.Fatal(err)
	}

	var kv db.KV
	if err := gdb.First(&kv, "k = ?", "geko.last_run_id").Error; err != nil {
		t.Fatal(err)
	}
	if kv.V != second.RunID {
		t.Fatalf("kv=%q want %q", kv.V, second.RunID)
	}

	run, err := LastRun(gdb)
	if err != nil {
		t.Fatal(err)
	}
	if run == nil || run.ID != second.RunID {
		t.Fatalf("run=%+v", run)
	}

	// skasowany wskaźnik nie zostawia statusu bez historii
	if err := gdb.Delete(&db.KV{K: "geko.last_run_id"}).Error; err != nil {
		t.Fatal(err)
	}
	run, err = LastRun(gdb)
	if err != nil {
		t.Fatal(err)
	}
	if run == nil {
		t.Fatal("brak przebiegu po usunięciu wskaźnika")
	}
}

func TestSyncRunSingleFlight(t *testing.T) {
	release := make(chan struct{})
	svc, _ := newTestSync(t, func(*http.Request) (*http.Response, error) {
		<-release
		return xmlResponse(200, feedTwoProducts), nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), defaultRunOptions())
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for !svc.inFlight.Load() {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := svc.Run(context.Background(), defaultRunOptions()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// po zakończeniu kolejny przebieg przechodzi
	if _, err := svc.Run(context.Background(), defaultRunOptions()); err != nil {
		t.Fatal(err)
	}
}
