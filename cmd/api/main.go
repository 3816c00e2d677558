package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/cmlabs-hris/presence-backend-go/internal/config"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/office"
	"github.com/cmlabs-hris/presence-backend-go/internal/domain/session"
	appHTTP "github.com/cmlabs-hris/presence-backend-go/internal/handler/http"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/cron"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/database"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/events"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/lock"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/sse"
	"github.com/cmlabs-hris/presence-backend-go/internal/pkg/timeintegrity"
	"github.com/cmlabs-hris/presence-backend-go/internal/repository/memory"
	"github.com/cmlabs-hris/presence-backend-go/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/presence-backend-go/internal/service/attendance"
	reportService "github.com/cmlabs-hris/presence-backend-go/internal/service/report"
	sessionService "github.com/cmlabs-hris/presence-backend-go/internal/service/session"
	"github.com/nats-io/nats.go"
)

type repositories struct {
	sessions  session.SessionRepository
	conflicts session.ConflictRepository
	offices   office.OfficeRepository
	close     func()
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	defer repos.close()

	hub := sse.NewHub(64)
	publisher, closePublisher, err := newPublisher(cfg, hub)
	if err != nil {
		return err
	}
	defer closePublisher()

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	location := cfg.Location()
	workStart, workEnd := cfg.WorkHours()

	checker := timeintegrity.NewChecker(timeintegrity.Policy{
		Tolerance: cfg.TimeIntegrity.Tolerance,
		MinYear:   cfg.TimeIntegrity.MinYear,
		MaxYear:   cfg.TimeIntegrity.MaxYear,
	}, newTimeSource(cfg), cfg.TimeIntegrity.SourceTimeout)

	store := sessionService.NewSessionStore(repos.sessions, repos.conflicts, publisher, workStart, location, nil)
	attendanceSvc := attendanceService.NewAttendanceService(store, repos.sessions, repos.offices, checker, publisher, workEnd, location, nil)
	reportSvc := reportService.NewReportService(repos.sessions, reportService.Policy{
		WorkStart:     workStart,
		WorkEnd:       workEnd,
		StandardHours: cfg.Session.StandardWorkHours,
	}, location, nil)

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)

	router := appHTTP.NewRouter(JWTService, appHTTP.Handlers{
		Attendance: appHTTP.NewAttendanceHandler(attendanceSvc),
		Session:    appHTTP.NewSessionHandler(store, cfg.Session.Timeout),
		Report:     appHTTP.NewReportHandler(reportSvc),
		Office:     appHTTP.NewOfficeHandler(repos.offices),
		Events:     appHTTP.NewEventsHandler(hub, JWTService),
	}, appHTTP.RouterOptions{
		AppName:        cfg.App.Name,
		Version:        cfg.App.Version,
		Env:            cfg.App.Env,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.App.RequestTimeout,
		LogLevel:       cfg.SlogLevel(),
	})

	scheduler := cron.NewScheduler()
	cron.NewSessionJobs(store, locker, cfg.Session.CleanupInterval, cfg.Session.Timeout).RegisterJobs(scheduler)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server running", "addr", server.Addr, "env", cfg.App.Env, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		offices, err := loadOffices(cfg.Session.OfficesFile)
		if err != nil {
			return nil, err
		}
		slog.Warn("Using in-memory storage, data is lost on restart", "offices", len(offices))
		return &repositories{
			sessions:  memory.NewSessionRepository(),
			conflicts: memory.NewConflictRepository(),
			offices:   memory.NewOfficeRepository(offices...),
			close:     func() {},
		}, nil
	default:
		dsn := cfg.DatabaseURL()
		db, err := database.NewPostgreSQLDB(ctx, dsn, database.PoolOptions{
			MaxConns:       cfg.Database.MaxConns,
			MinConns:       cfg.Database.MinConns,
			ConnectTimeout: cfg.Database.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := database.RunMigrations(dsn); err != nil {
			db.Close()
			return nil, err
		}
		return &repositories{
			sessions:  postgresql.NewSessionRepository(db),
			conflicts: postgresql.NewConflictRepository(db),
			offices:   postgresql.NewOfficeRepository(db),
			close:     db.Close,
		}, nil
	}
}

func newPublisher(cfg *config.Config, hub *sse.Hub) (session.EventPublisher, func(), error) {
	hubPublisher := events.NewHubPublisher(hub)
	if cfg.NATS.URL == "" {
		return hubPublisher, func() {}, nil
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	slog.Info("Publishing session events to NATS", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)

	publisher := events.Multi{hubPublisher, events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix)}
	return publisher, func() {
		if err := nc.Drain(); err != nil {
			slog.Warn("Failed to drain NATS connection", "error", err)
		}
	}, nil
}

func newLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return lock.Local{}, func() {}, nil
	}
	rdb, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedis(rdb, cfg.Redis.LockPrefix), func() { rdb.Close() }, nil
}

func newTimeSource(cfg *config.Config) timeintegrity.Source {
	switch cfg.TimeIntegrity.Source {
	case config.TimeSourceHTTP:
		return timeintegrity.NewHTTPSource(cfg.TimeIntegrity.SourceURL, cfg.TimeIntegrity.SourceTimeout)
	case config.TimeSourceNTP:
		return timeintegrity.NTPSource{Host: cfg.TimeIntegrity.NTPServer, Timeout: cfg.TimeIntegrity.SourceTimeout}
	default:
		return timeintegrity.SystemSource{}
	}
}
