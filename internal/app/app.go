package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/MrJamesThe3rd/lipa/internal/callback"
	"github.com/MrJamesThe3rd/lipa/internal/checkout"
	"github.com/MrJamesThe3rd/lipa/internal/config"
	"github.com/MrJamesThe3rd/lipa/internal/database"
	"github.com/MrJamesThe3rd/lipa/internal/invoice"
	invoiceStore "github.com/MrJamesThe3rd/lipa/internal/invoice/store"
	"github.com/MrJamesThe3rd/lipa/internal/metrics"
	"github.com/MrJamesThe3rd/lipa/internal/mpesa"
	"github.com/MrJamesThe3rd/lipa/internal/notify"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
	paymentStore "github.com/MrJamesThe3rd/lipa/internal/payment/store"
	"github.com/MrJamesThe3rd/lipa/internal/reconcile"
	"github.com/MrJamesThe3rd/lipa/internal/settlement"
)

// App holds the services every binary shares, wired from one Config.
type App struct {
	Config   *config.Config
	DB       *sql.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Gateway    *mpesa.Client
	Tokens     mpesa.TokenSource
	Payments   *payment.Service
	Invoices   *invoice.Service
	Settlement *settlement.Service
	Publisher  settlement.Publisher
	// Consumer is nil unless Kafka brokers are configured.
	Consumer  *settlement.Consumer
	Processor *callback.Processor
	Checkout  *checkout.Service
	Sweeper   *reconcile.Sweeper

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, DB: db, Registry: prometheus.NewRegistry()}
	a.closers = append(a.closers, db.Close)

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	a.Gateway = mpesa.NewClient(cfg.Mpesa, mpesa.WithMetrics(a.Metrics))
	a.Tokens = a.tokenSource(ctx)

	a.Payments = payment.NewService(paymentStore.New(db))
	a.Invoices = invoice.NewService(invoiceStore.New(db))
	a.Settlement = settlement.NewService(a.Invoices)

	if len(cfg.Kafka.Brokers) > 0 {
		pub := settlement.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.Publisher = pub
		a.Consumer = settlement.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, a.Settlement)
		a.closers = append(a.closers, pub.Close, a.Consumer.Close)
	} else {
		a.Publisher = settlement.NewDirectPublisher(a.Settlement)
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Processor = callback.NewProcessor(a.Payments, notifier, a.Publisher, callback.WithMetrics(a.Metrics))
	a.Checkout = checkout.NewService(a.Payments, a.Gateway, a.Tokens)
	a.Sweeper = reconcile.NewSweeper(a.Payments, a.Gateway, a.Tokens, a.Processor, reconcile.Config{
		Interval:     cfg.Reconcile.Interval,
		After:        cfg.Reconcile.After,
		AbandonAfter: cfg.Reconcile.AbandonAfter,
		BatchSize:    cfg.Reconcile.BatchSize,
	}, reconcile.WithMetrics(a.Metrics))

	return a, nil
}

func (a *App) tokenSource(ctx context.Context) mpesa.TokenSource {
	cfg := a.Config

	if cfg.Redis.Addr == "" {
		return mpesa.NewMemoryTokenCache(a.Gateway, cfg.Mpesa.TokenMargin)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.closers = append(a.closers, rdb.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, tokens will be fetched per request until it recovers", "addr", cfg.Redis.Addr, "error", err)
	}

	return mpesa.NewRedisTokenCache(a.Gateway, rdb, cfg.Mpesa.ShortCode, cfg.Mpesa.TokenMargin)
}

func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.SMTP.Host == "" {
		return notify.Nop{}, nil
	}

	m, err := notify.NewMailer(notify.MailerConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring mailer: %w", err)
	}

	return m, nil
}

// Close waits for in-flight side effects, then releases connections in reverse order.
func (a *App) Close() {
	if a.Processor != nil {
		a.Processor.Wait()
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
}
