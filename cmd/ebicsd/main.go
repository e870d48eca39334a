// Command ebicsd runs the EBICS H004 banking sandbox daemon: the EBICS
// XML endpoint, the companion HTTP/JSON API, the cash-out drain
// monitor, and the admin gRPC control plane, all over one Postgres
// ledger/EBICS schema (spec.md §5).
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jackc/pgx/v4/pgxpool"
	_ "github.com/jackc/pgx/v4/stdlib"
	"golang.org/x/sync/errgroup"

	"github.com/sandboxbank/ebicsd/internal/adminrpc"
	"github.com/sandboxbank/ebicsd/internal/cashout"
	"github.com/sandboxbank/ebicsd/internal/config"
	"github.com/sandboxbank/ebicsd/internal/ebicsengine"
	"github.com/sandboxbank/ebicsd/internal/httpapi"
	"github.com/sandboxbank/ebicsd/internal/ledger"
	"github.com/sandboxbank/ebicsd/internal/logs"
	"github.com/sandboxbank/ebicsd/internal/nexus"
	"github.com/sandboxbank/ebicsd/internal/notify"
	"github.com/sandboxbank/ebicsd/internal/orders"
	"github.com/sandboxbank/ebicsd/internal/schema"
	"github.com/sandboxbank/ebicsd/internal/subscriber"
)

// ebicsdMain is the true entry point; kept separate from main so that
// deferred cleanups run even when a setup step returns an error
// (os.Exit in main skips them otherwise).
func ebicsdMain() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	if err := logs.InitLogRotator(cfg.LogFile, 10, cfg.MaxLogFiles); err != nil {
		return fmt.Errorf("ebicsd: init log rotator: %w", err)
	}
	logs.RPC.Infof("starting ebicsd for demobank %q", cfg.DemobankName)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("ebicsd: open database: %w", err)
	}
	defer db.Close()

	if err := schema.Migrate(db); err != nil {
		return fmt.Errorf("ebicsd: migrate schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("ebicsd: connect pool: %w", err)
	}
	defer pool.Close()

	bus, err := notify.NewPQBus(cfg.DatabaseDSN, db)
	if err != nil {
		return fmt.Errorf("ebicsd: start notification bus: %w", err)
	}
	defer bus.Close()

	ledgerRepo := ledger.NewRepository()
	l := ledger.NewLedger(pool, ledgerRepo, bus)

	demobank, err := ledgerRepo.GetDemobank(ctx, pool, cfg.DemobankName)
	if err != nil {
		return fmt.Errorf("ebicsd: load demobank %q: %w", cfg.DemobankName, err)
	}

	subsRepo := subscriber.NewRepository()
	boundAccounts := orders.NewBoundAccounts(pool, subsRepo, ledgerRepo)
	registry := orders.NewRegistry(l, boundAccounts)

	engine := ebicsengine.NewEngine(pool, ebicsengine.NewHostRepository(), subsRepo,
		ebicsengine.NewRepository(), registry, cfg.RequestsPerSecond, cfg.Burst)

	cashoutRepo := cashout.NewRepository()
	tanSender := cashout.NewTanSender(cfg.EmailTanCmd, cfg.SMSTanCmd)
	cashoutSvc := cashout.NewService(pool, l, cashoutRepo, tanSender)

	nexusClient := nexus.NewClient(cfg.NexusBaseURL, cfg.NexusUsername, cfg.NexusPassword,
		&http.Client{Timeout: 30 * time.Second})

	drainAccount, err := ledgerRepo.GetAccountByLabel(ctx, pool, cfg.DemobankName, cfg.DrainAccountLabel)
	if err != nil {
		return fmt.Errorf("ebicsd: load drain account %q: %w", cfg.DrainAccountLabel, err)
	}
	monitor := cashout.NewMonitor(drainAccount, cfg.NexusUsername, pool, ledgerRepo, cashoutRepo,
		bus, nexusClient, demobank.AdvanceWatermarkOnError)
	if err := monitor.Start(); err != nil {
		return fmt.Errorf("ebicsd: start cash-out monitor: %w", err)
	}
	defer monitor.Stop()

	rootKey := make([]byte, 32)
	if _, err := rand.Read(rootKey); err != nil {
		return fmt.Errorf("ebicsd: generate macaroon root key: %w", err)
	}
	auth := adminrpc.NewMacaroonAuth(rootKey, "ebicsd")
	adminServer := adminrpc.NewServer(pool, subsRepo, cfg.DemobankName, auth)
	adminServer.RegisterMonitor(cfg.DrainAccountLabel, monitor)

	adminLis, err := net.Listen("tcp", cfg.AdminAddr)
	if err != nil {
		return fmt.Errorf("ebicsd: listen admin: %w", err)
	}

	httpServer := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: (&httpapi.Server{
			Envelope: engine,
			Accounts: httpapi.NewLedgerAccounts(pool, ledgerRepo),
			Cashouts: cashoutSvc,
			Demobank: cfg.DemobankName,
		}).Mux(),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ebicsd: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return adminServer.Start(adminLis)
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		adminServer.Stop()
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logs.RPC.Infof("received shutdown signal")
		cancel()
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logs.RPC.Warnf("sd_notify failed: %v", err)
	}

	return g.Wait()
}

func main() {
	if err := ebicsdMain(); err != nil {
		fmt.Fprintf(os.Stderr, "[ebicsd] %v\n", err)
		os.Exit(1)
	}
}
