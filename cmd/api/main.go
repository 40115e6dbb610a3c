package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"reading-fluency-go/internal/achievement"
	"reading-fluency-go/internal/config"
	"reading-fluency-go/internal/dataset"
	"reading-fluency-go/internal/events"
	"reading-fluency-go/internal/logger"
	"reading-fluency-go/internal/metrics"
	"reading-fluency-go/internal/processor"
	"reading-fluency-go/internal/report"
	"reading-fluency-go/internal/storage"
	"reading-fluency-go/internal/store"
	"reading-fluency-go/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "reading-fluency-go").Info("starting service")
	if err := run(log); err != nil {
		log.WithError(err).Fatal("service stopped")
	}
	log.Info("service stopped")
}

// run returns once the server stops; its deferred closes run before main exits.
func run(log *logger.Logger) error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open attempt store: %w", err)
	}
	defer db.Close()

	if cfg.Storage.ImportPath != "" {
		log.WithField("dataset_path", cfg.Storage.ImportPath).Info("importing attempt workbook")
		attempts, err := dataset.LoadAttempts(cfg.Storage.ImportPath)
		if err != nil {
			return fmt.Errorf("load attempt workbook: %w", err)
		}
		n, err := db.ImportAttempts(context.Background(), attempts)
		if err != nil {
			return fmt.Errorf("import attempts: %w", err)
		}
		log.WithField("imported", n).Info("attempt workbook imported")
	}

	audio, err := storage.NewDiskStore(cfg.Storage.AudioDir, "")
	if err != nil {
		return fmt.Errorf("prepare audio storage: %w", err)
	}

	asr := transcription.NewClient(transcription.ClientConfig{
		URL:      cfg.ASR.URL,
		APIKey:   cfg.ASR.APIKey,
		Model:    cfg.ASR.Model,
		Language: cfg.ASR.Language,
		Timeout:  cfg.ASR.Timeout,
		Mock:     cfg.ASR.Mock,
	})

	pub := events.New(events.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		Enabled: cfg.Kafka.Enabled,
	}, metrics.DefaultMetrics)
	defer pub.Close()

	proc := processor.New(audio, asr, db, pub, processor.Options{
		HesitationSeconds: cfg.Scoring.HesitationSeconds,
		MinAudioBytes:     cfg.Scoring.MinAudioBytes,
		Normalizer: transcription.Normalizer{
			DefaultConfidence: cfg.Scoring.DefaultConfidence,
			SecondsPerWord:    transcription.DefaultSecondsPerWord,
		},
		Metrics: metrics.DefaultMetrics,
	})

	evaluator := achievement.New(achievement.Config{
		DefaultThreshold: cfg.Scoring.AbsoluteThreshold,
		ZScoreCutoff:     cfg.Scoring.ZScoreCutoff,
	})
	reports := report.NewService(db, evaluator, metrics.DefaultMetrics)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newServer(proc, reports).routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	log.WithField("addr", addr).Info("listening")
	return serve(srv, stop, 30*time.Second)
}
