package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/keanlouis30/Easely/internal/canvas"
	"github.com/keanlouis30/Easely/internal/config"
	"github.com/keanlouis30/Easely/internal/jobs"
	"github.com/keanlouis30/Easely/internal/metrics"
	"github.com/keanlouis30/Easely/internal/store"
	"github.com/keanlouis30/Easely/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	router  *telegram.Router
	cron    *cron.Cron
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting easely",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("canvas", a.cfg.CanvasBaseURL),
	)

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	gw := canvas.NewClient(a.log)
	a.router = telegram.NewRouter(a.bot, a.log, a.repo, gw, telegram.Config{
		CanvasBaseURL:   a.cfg.CanvasBaseURL,
		FreeManualTasks: a.cfg.FreeManualTasksPerMonth,
		PremiumDuration: a.cfg.PremiumDuration(),
	})

	if err := a.startJobs(ctx, gw); err != nil {
		_ = a.repo.Close()
		return err
	}

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")

			cronCtx := a.cron.Stop() // lets an in-flight job finish
			<-cronCtx.Done()

			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()

			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}
			if a.repo != nil {
				_ = a.repo.Close()
			}
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// startJobs builds the three background jobs and schedules them on cron.
// Each entry hands RunOnce the wall clock; the jobs never read it
// themselves.
func (a *App) startJobs(ctx context.Context, gw *canvas.Client) error {
	met := metrics.New(prometheus.DefaultRegisterer)

	sync := jobs.NewSync(a.repo, gw, jobs.SyncConfig{
		Staleness:     a.cfg.SyncStaleness,
		UserDelay:     a.cfg.SyncUserDelay,
		RateLimitWait: a.cfg.RateLimitWait,
		BatchSize:     a.cfg.SyncBatchSize,
	}, a.log, met)
	reminders := jobs.NewReminders(a.repo, a.router, a.cfg.ReminderTolerance, a.log, met)
	expiry := jobs.NewExpiry(a.repo, a.router, a.log, met)

	a.cron = cron.New()
	schedule := func(spec, name string, run func(context.Context, time.Time) error) error {
		_, err := a.cron.AddFunc(spec, func() {
			if err := run(ctx, time.Now().UTC()); err != nil {
				a.log.Error(name+" job failed", zap.Error(err))
			}
		})
		return err
	}

	if err := schedule(a.cfg.SyncCron, "sync", func(ctx context.Context, now time.Time) error {
		_, err := sync.RunOnce(ctx, now)
		return err
	}); err != nil {
		return err
	}
	if err := schedule(a.cfg.ReminderCron, "reminder", func(ctx context.Context, now time.Time) error {
		_, err := reminders.RunOnce(ctx, now)
		return err
	}); err != nil {
		return err
	}
	if err := schedule(a.cfg.ExpiryCron, "expiry", func(ctx context.Context, now time.Time) error {
		_, err := expiry.RunOnce(ctx, now)
		return err
	}); err != nil {
		return err
	}

	a.cron.Start()
	a.log.Info("jobs scheduled",
		zap.String("sync", a.cfg.SyncCron),
		zap.String("reminders", a.cfg.ReminderCron),
		zap.String("expiry", a.cfg.ExpiryCron),
	)
	return nil
}
