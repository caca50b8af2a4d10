package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/gadgetchat/internal/chat"
	"github.com/suPer8Hu/gadgetchat/internal/config"
	"github.com/suPer8Hu/gadgetchat/internal/db"
	"github.com/suPer8Hu/gadgetchat/internal/httpapi"
	"github.com/suPer8Hu/gadgetchat/internal/logging"
	"github.com/suPer8Hu/gadgetchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/gadgetchat/internal/store/redisstore"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, nil)
	gin.SetMode(gin.ReleaseMode)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config) error {
	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		return err
	}
	repo := chat.NewRepo(gdb)
	if err := repo.AutoMigrate(); err != nil {
		return errors.Wrap(err, "automigrate")
	}

	var broker chat.Broker
	switch cfg.Broker {
	case "redis":
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rds.Ping(context.Background()); err != nil {
			return errors.Wrap(err, "redis ping")
		}
		defer rds.Close()
		broker = redisstore.NewBroker(rds)
	case "", "memory":
		broker = chat.NewMemoryBroker(64)
	default:
		return errors.Errorf("unsupported BROKER=%q", cfg.Broker)
	}

	// notifications are optional; chat works without the queue
	var notifier chat.Notifier
	if pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, notifications disabled")
	} else {
		defer pub.Close()
		notifier = pub
	}

	svc := chat.NewService(repo, broker, notifier, cfg.ChatHistoryLimit)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(cfg, svc),
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: chat streams are long lived
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("broker", cfg.Broker).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// open streams keep Shutdown waiting until the timeout, then they are cut
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return srv.Close()
		}
		return nil
	})
	return g.Wait()
}
