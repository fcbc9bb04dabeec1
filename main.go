package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	conf "github.com/b2bshop/gekosync/internal/config"
	"github.com/b2bshop/gekosync/internal/db"
	"github.com/b2bshop/gekosync/internal/integrations"
	"github.com/b2bshop/gekosync/internal/integrations/geko"
	logs "github.com/b2bshop/gekosync/internal/logs"
	syncer "github.com/b2bshop/gekosync/internal/syncer"
	"github.com/rs/zerolog"
)

var ver = "1.0.0"

func main() {
	appDir := mustAppDataDir("gekosync")
	log := logs.New(filepath.Join(appDir, "app.log"), true)

	cfgPath := filepath.Join(appDir, "config.json")
	cfg, firstRun, err := conf.LoadOrCreate(cfgPath)
	if err != nil {
		panic(err)
	}
	if firstRun {
		log.Info().Msgf("Utworzono domyślną konfigurację: %s", cfgPath)
	}

	dbh, err := db.Open(cfg.DB.Driver, cfg.DB.DSN, appDir)
	if err != nil {
		log.Fatal().Err(err).Msg("DB open error")
	}
	if err := dbh.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("DB migrate error")
	}
	log.Info().Str("db", dbh.Path).Msg("DB ready")
	sqlDB, _ := dbh.DB.DB()
	defer sqlDB.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := syncer.New(log, cfg, dbh.DB)

	if cfg.AutoStart {
		if err := s.Start(ctx); err != nil {
			log.Error().Msgf("AutoStart nieudany: %v", err)
		} else {
			log.Info().Msgf("GekoSync %s — działa", ver)
		}
	}

	// Prosta pętla poleceń w terminalu
	fmt.Println("GekoSync CLI", ver)
	fmt.Println("Komendy: start | stop | sync | testconn | margin <pct> | status | reload | paths | quit")
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")
		line, _ := reader.ReadString('\n')
		fields := strings.Fields(strings.TrimSpace(strings.ToLower(line)))
		cmd := ""
		if len(fields) > 0 {
			cmd = fields[0]
		}

		switch cmd {
		case "start":
			if err := s.Start(ctx); err != nil {
				log.Error().Msgf("Start error: %v", err)
				fmt.Println("Błąd startu:", err)
				continue
			}
			fmt.Println("Start OK")

		case "stop":
			s.Stop()
			fmt.Println("Zatrzymano")

		case "sync":
			// gdy harmonogram działa, trigger idzie przez jego instancję —
			// dzielą single-flight, więc nic się nie nałoży
			if inst, ok := s.Integration("geko"); ok {
				if r, ok := inst.(interface{ RunNow() }); ok {
					fmt.Println("Sync zlecony (przez działającą integrację)")
					go r.RunNow()
					continue
				}
			}
			gcfg, svc, err := standaloneGeko(cfg, dbh, log)
			if err != nil {
				fmt.Println("Błąd konfiguracji geko:", err)
				continue
			}
			fmt.Println("Sync...")
			st, err := svc.Run(ctx, geko.RunOptionsFor(gcfg))
			if err != nil {
				fmt.Println("Sync zakończony błędem:", err)
				continue
			}
			fmt.Printf("OK: rekordów=%d nowych=%d zaktualizowanych=%d błędów=%d czas=%s\n",
				st.TotalRecords, st.Created, st.Updated, st.Errors, st.Duration().Round(time.Millisecond))

		case "testconn":
			gcfg := geko.DefaultConfig()
			if err := cfg.UnmarshalIntegration("geko", &gcfg); err != nil {
				fmt.Println("Błąd konfiguracji geko:", err)
				continue
			}
			client := geko.NewClient(gcfg, log)
			if client.TestConnectivity(ctx) {
				fmt.Println("Połączenie z API Geko: OK")
			} else {
				fmt.Println("Połączenie z API Geko: BŁĄD (szczegóły w logu)")
			}

		case "margin":
			if len(fields) < 2 {
				fmt.Println("Użycie: margin <procent>, np. margin 30")
				continue
			}
			pct, err := strconv.ParseFloat(fields[1], 64)
			if err != nil || pct < 0 {
				fmt.Println("Nieprawidłowy procent:", fields[1])
				continue
			}
			gcfg := geko.DefaultConfig()
			_ = cfg.UnmarshalIntegration("geko", &gcfg)
			gcfg.MarginPercent = pct
			if err := cfg.SetIntegration("geko", gcfg); err != nil {
				fmt.Println("Błąd zapisu:", err)
				continue
			}
			if err := conf.Save(cfgPath, cfg); err != nil {
				fmt.Println("Błąd zapisu configa:", err)
				continue
			}
			s.UpdateConfig(cfg)
			fmt.Printf("Marża ustawiona na %.2f%% (obowiązuje od następnego przebiegu)\n", pct)

		case "status":
			if s.IsRunning() {
				fmt.Println("Harmonogram: DZIAŁA")
			} else {
				fmt.Println("Harmonogram: ZATRZYMANY")
			}
			fmt.Println("Dostępne integracje:", strings.Join(integrations.Names(), ", "))
			run, err := geko.LastRun(dbh.DB)
			if err != nil {
				fmt.Println("Błąd odczytu sync_runs:", err)
				continue
			}
			if run == nil {
				fmt.Println("Brak zapisanych przebiegów")
				continue
			}
			fmt.Printf("Ostatni sync %s (%s): rekordów=%d nowych=%d zaktualizowanych=%d cen=%d stanów=%d błędów=%d sukces=%.1f%%\n",
				run.ID, run.StartedAt.Format(time.RFC3339),
				run.TotalRecords, run.Created, run.Updated,
				run.PricesWritten, run.StocksWritten, run.Errors, run.SuccessRate*100)
			if run.LastError != "" {
				fmt.Println("Błąd przebiegu:", run.LastError)
			}

		case "reload":
			newCfg, _, err := conf.LoadOrCreate(cfgPath)
			if err != nil {
				log.Error().Msgf("Błąd reloadu: %v", err)
				fmt.Println("Błąd reloadu:", err)
				continue
			}
			cfg = newCfg
			s.UpdateConfig(cfg)
			log.Info().Msg("Konfiguracja przeładowana")
			fmt.Println("Konfiguracja przeładowana")

		case "paths":
			fmt.Println("Logi:", filepath.Join(appDir, "app.log"))
			fmt.Println("Config:", cfgPath)
			fmt.Println("Baza:", dbh.Path)

		case "quit", "exit":
			cancel()
			s.Stop()
			time.Sleep(50 * time.Millisecond)
			return

		case "":
			// enter – ignoruj

		default:
			fmt.Println("Nieznana komenda. Użyj: start | stop | sync | testconn | margin <pct> | status | reload | paths | quit")
		}
	}
}

// standaloneGeko buduje klienta i serwis do jednorazowych komend,
// gdy harmonogram nie działa.
func standaloneGeko(cfg *conf.Config, dbh *db.Handle, log zerolog.Logger) (geko.Config, *geko.SyncService, error) {
	gcfg := geko.DefaultConfig()
	if err := cfg.UnmarshalIntegration("geko", &gcfg); err != nil {
		return gcfg, nil, err
	}
	client := geko.NewClient(gcfg, log)
	return gcfg, geko.NewSyncService(dbh.DB, client, log), nil
}

func mustAppDataDir(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	p := filepath.Join(base, name)
	_ = os.MkdirAll(p, 0o755)
	return p
}
