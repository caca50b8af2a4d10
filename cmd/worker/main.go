package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/gadgetchat/internal/chat"
	"github.com/suPer8Hu/gadgetchat/internal/config"
	"github.com/suPer8Hu/gadgetchat/internal/db"
	"github.com/suPer8Hu/gadgetchat/internal/logging"
	"github.com/suPer8Hu/gadgetchat/internal/notify"
	"github.com/suPer8Hu/gadgetchat/internal/store/rabbitmq"
)

const (
	maxAttempts = 5
	retryDelay  = 10 * time.Second
)

func workerConcurrency(n int) int {
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, nil)

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	repo := chat.NewRepo(gdb)
	proc := notify.NewProcessor(repo, notify.LogDeliverer{Log: log.Logger.With().Str("component", "deliver").Logger()})

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit channel")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatal().Err(err).Msg("queue declare")
	}
	retries := rabbitmq.NewChannelPublisher(ch, cfg.RabbitQueue)

	//  strict concurrency control
	concurrency := workerConcurrency(cfg.WorkerConcurrency)

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal().Err(err).Msg("qos")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("worker started")

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			l := log.Logger.With().Int("worker", workerID).Logger()
			for d := range jobs {
				handleDelivery(ctx, l, proc, retries, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error().Msg("delivery channel closed")
				close(jobs)
				wg.Wait()
				os.Exit(1)
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, l zerolog.Logger, proc *notify.Processor, retries *rabbitmq.Publisher, d amqp.Delivery) {
	var m rabbitmq.NotificationMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.NotificationID == "" {
		l.Warn().Err(err).Msg("bad message")
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err := proc.Handle(ctx, m.NotificationID)
	if err == nil {
		if err := d.Ack(false); err != nil {
			l.Warn().Err(err).Str("notification_id", m.NotificationID).Msg("ack failed")
		}
		return
	}

	l.Warn().Err(err).Str("notification_id", m.NotificationID).Int("attempt", m.Attempt).Dur("cost", time.Since(start)).Msg("notification failed")

	if !errors.Is(err, notify.ErrPermanent) && m.Attempt+1 < maxAttempts {
		m.Attempt++
		perr := retries.PublishRetry(ctx, m, retryDelay*time.Duration(m.Attempt))
		if perr == nil {
			_ = d.Ack(false)
			return
		}
		l.Error().Err(perr).Str("notification_id", m.NotificationID).Msg("schedule retry")
	}

	// dead-letter
	proc.GiveUp(ctx, m.NotificationID, err)
	_ = d.Nack(false, false)
}
