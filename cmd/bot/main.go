package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tg-channel-digest/internal/adapters/bot"
	"tg-channel-digest/internal/adapters/fetcher"
	"tg-channel-digest/internal/adapters/oracle"
	"tg-channel-digest/internal/adapters/repo"
	"tg-channel-digest/internal/domain"
	"tg-channel-digest/internal/infra/cache"
	"tg-channel-digest/internal/infra/config"
	"tg-channel-digest/internal/infra/db"
	"tg-channel-digest/internal/infra/log"
	"tg-channel-digest/internal/infra/metrics"
	"tg-channel-digest/internal/infra/openai"
	"tg-channel-digest/internal/infra/queue"
	"tg-channel-digest/internal/usecase/digest"
	"tg-channel-digest/internal/usecase/sources"
	"tg-channel-digest/internal/usecase/tracker"
	"tg-channel-digest/internal/usecase/watch"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	var (
		sourceRepo domain.SourceRepo
		postRepo   domain.PostRepo
		descRepo   domain.DescriptionRepo
		stateRepo  domain.StateRepo
	)
	if cfg.PGDSN != "" {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Fatal().Err(err).Msg("не удалось применить миграции")
		}
		pool, err := db.Connect(cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
		}
		defer pool.Close()
		pg := repo.NewPostgres(pool)
		sourceRepo, postRepo, descRepo, stateRepo = pg, pg, pg, pg
	} else {
		// Dev-режим без Postgres: всё в памяти.
		mem := repo.NewMemory()
		sourceRepo, postRepo, descRepo, stateRepo = mem, mem, mem, mem
		logger.Warn().Msg("PG_DSN не задан, используется хранилище в памяти")
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	redisCache := cache.NewRedis(rdb)

	web := fetcher.NewWeb(cfg.Fetch.GlobalRPS, logger)
	if cfg.RedisAddr != "" {
		web = web.WithPageCache(redisCache, cfg.Fetch.PageCacheTTL)
	}

	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, "", 60*time.Second)
	oracleAdapter := oracle.NewOpenAI(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens, logger)

	trackerService := tracker.NewService(sourceRepo, postRepo, descRepo, web, oracleAdapter, cfg.Tracking.PostLimit, cfg.Tracking.NewChannelPostLimit, logger)
	watchService := watch.NewService(trackerService, oracleAdapter, cfg.Tracking.CheckInterval, logger)
	digestService := digest.NewService(postRepo, descRepo, oracleAdapter, logger)
	sourcesService := sources.NewService(sourceRepo, descRepo, stateRepo, web, oracleAdapter, cfg.Tracking.BootstrapSampleLimit, logger)

	var jobs domain.DigestQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitDigestQueue(cfg.AMQPURL, cfg.Queues.Digest)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		jobs = rabbit
	} else {
		jobs = queue.NewRedisDigestQueue(rdb, cfg.Queues.Digest)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	h := bot.NewHandler(botAPI, logger, sourcesService, watchService, postRepo, jobs)
	watchService.SetNotifier(h)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(rootCtx, logger, ":9090")

	go digestWorker(rootCtx, logger, jobs, digestService, redisCache, h)

	r := chi.NewRouter()
	r.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("бот запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бота")

	rootCancel()
	watchService.StopAll()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// digestWorker разбирает очередь задач. Once-лок в Redis схлопывает
// конкурирующие задачи одного пользователя.
func digestWorker(ctx context.Context, logger zerolog.Logger, jobs domain.DigestQueue, builder *digest.Service, locks domain.Cache, h *bot.Handler) {
	for {
		job, err := jobs.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("не удалось получить задачу дайджеста")
			time.Sleep(time.Second)
			continue
		}

		lockKey := fmt.Sprintf("digest:lock:%d", job.UserID)
		err = locks.Once(lockKey, 30*time.Second, func() error {
			text, err := builder.Build(ctx, job.UserID)
			if err != nil {
				return err
			}
			h.SendDigest(job.ChatID, text)
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Str("job", job.ID).Int64("user", job.UserID).Msg("не удалось построить дайджест")
		}
	}
}
