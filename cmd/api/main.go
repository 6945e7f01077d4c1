package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/device-sync-go/internal/config"
	appHTTP "github.com/cmlabs-hris/device-sync-go/internal/handler/http"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/cron"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/database"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/terminal"
	"github.com/cmlabs-hris/device-sync-go/internal/repository/postgresql"
	deviceService "github.com/cmlabs-hris/device-sync-go/internal/service/device"
	"github.com/cmlabs-hris/device-sync-go/internal/service/reconcile"
	syncService "github.com/cmlabs-hris/device-sync-go/internal/service/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		return
	}

	db, err := database.NewPostgreSQLDB(cfg.DatabaseURL())
	if err != nil {
		fmt.Println("Error connecting to database:", err)
		return
	}
	defer db.Close()

	deviceRepo := postgresql.NewDeviceRepository(db)
	attendanceRepo := postgresql.NewAttendanceRepository(db)
	employeeRepo := postgresql.NewEmployeeRepository(db)
	syncLogRepo := postgresql.NewSyncLogRepository(db)
	txManager := postgresql.NewTxManager(db)

	var links *terminal.LinkManager
	switch cfg.Device.Driver {
	case "sim":
		links = terminal.NewLinkManager(terminal.SimulatorFactory(), cfg.Device.ProbeTimeout, cfg.Device.DriverTimeout).
			WithProbe(terminal.NoProbe)
	case "zk":
		// Future: vendor protocol adapter
		log.Fatal("ZK terminal driver not yet implemented, set DEVICE_DRIVER=sim")
	default:
		log.Fatal("Unsupported terminal driver: ", cfg.Device.Driver)
	}

	policy := reconcile.PolicyToggle
	if cfg.Sync.PairingPolicy == "first-last" {
		policy = reconcile.PolicyFirstLast
	}
	engine := reconcile.NewEngine(employeeRepo, attendanceRepo, reconcile.Config{
		DedupWindow: cfg.Sync.DedupWindow,
		Policy:      policy,
	})

	orchestrator := syncService.NewOrchestrator(
		deviceRepo,
		attendanceRepo,
		syncLogRepo,
		engine,
		links,
		txManager,
		syncService.Config{
			LookbackWindow:    cfg.Sync.LookbackWindow,
			MaxRecordsPerRun:  cfg.Sync.MaxRecordsPerRun,
			MaxConnectRetries: cfg.Sync.MaxConnectRetries,
			RetryInitialDelay: cfg.Sync.RetryInitialDelay,
			RunDeadline:       cfg.Sync.RunDeadline,
			WorkerLimit:       cfg.Sync.WorkerLimit,
		},
	)

	scheduler := cron.NewScheduler(cron.RealClock())
	deviceSvc := deviceService.NewDeviceService(
		deviceRepo,
		employeeRepo,
		attendanceRepo,
		syncLogRepo,
		links,
		orchestrator,
		scheduler,
		cfg.Device.DefaultPort,
		cfg.Device.StatusCheckInterval,
		cfg.Sync.DefaultInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := deviceSvc.RefreshSchedules(ctx); err != nil {
		log.Fatal("Failed to load sync schedules: ", err)
	}
	scheduler.Start()

	deviceHandler := appHTTP.NewDeviceHandler(deviceSvc)
	syncHandler := appHTTP.NewSyncHandler(orchestrator)
	router := appHTTP.NewRouter(deviceHandler, syncHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Server running at http://localhost%s\n", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Println("Server error:", err)
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Println("Server shutdown error:", err)
	}
	scheduler.Stop()
	links.ReleaseAll()
}
