package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"taskdesk/internal/api"
	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/internal/logger"
	"taskdesk/pkg/activity"
	"taskdesk/pkg/auth"
	"taskdesk/pkg/memstore"
	"taskdesk/pkg/report"
	"taskdesk/pkg/task"
	"taskdesk/pkg/user"
)

type stores struct {
	users    user.Store
	tasks    task.Store
	activity activity.Store
	close    func()
}

func main() {
	cfg := config.MustLoad()
	lg := logger.Setup(cfg.Env, cfg.LogLevel)
	lg.WithField("config", cfg.String()).Info("starting taskdesk")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, lg)
	if err != nil {
		lg.WithError(err).Fatal("open stores")
	}
	defer st.close()

	// Ensure tables exist
	for name, ensure := range map[string]func(context.Context) error{
		"users":    st.users.EnsureTable,
		"tasks":    st.tasks.EnsureTable,
		"activity": st.activity.EnsureTable,
	} {
		if err := ensure(ctx); err != nil {
			lg.WithError(err).WithField("table", name).Fatal("ensure table")
		}
	}

	authSvc := auth.NewService(st.users, auth.Config{
		Secret:          []byte(cfg.JWTSecret),
		TokenTTL:        cfg.TokenTTL,
		BcryptCost:      cfg.BcryptCost,
		InviteToken:     cfg.AdminInviteToken,
		InviteTokenHash: cfg.AdminInviteTokenHash,
	}, lg.WithField("component", "auth"))
	engine := task.NewEngine(st.tasks, st.users, st.activity, lg.WithField("component", "tasks"))

	server := api.New(api.Deps{
		Auth:      authSvc,
		Tasks:     engine,
		Users:     st.users,
		Reports:   report.NewBuilder(st.tasks, st.users),
		Activity:  st.activity,
		UploadDir: cfg.UploadDir,
		ClientURL: cfg.ClientURL,
		Debug:     cfg.Debug,
		Log:       lg.WithField("component", "api"),
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.WithField("port", cfg.Port).Info("taskdesk listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.WithError(err).Error("shutdown")
	}
	lg.Info("server stopped")
}

func openStores(ctx context.Context, cfg *config.Config, lg *log.Entry) (*stores, error) {
	if cfg.Memory() {
		lg.Warn("DATABASE_URL not set, using in-memory stores; data is lost on restart")
		return &stores{
			users:    memstore.NewUsers(),
			tasks:    memstore.NewTasks(),
			activity: memstore.NewActivity(),
			close:    func() {},
		}, nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &stores{
		users:    user.NewPgStore(pool),
		tasks:    task.NewPgStore(pool),
		activity: activity.NewPgStore(pool),
		close:    pool.Close,
	}, nil
}
