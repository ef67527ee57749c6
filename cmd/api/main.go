package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"tg-channel-digest/internal/adapters/fetcher"
	"tg-channel-digest/internal/adapters/oracle"
	"tg-channel-digest/internal/adapters/repo"
	"tg-channel-digest/internal/domain"
	"tg-channel-digest/internal/infra/config"
	"tg-channel-digest/internal/infra/db"
	infralog "tg-channel-digest/internal/infra/log"
	"tg-channel-digest/internal/infra/metrics"
	"tg-channel-digest/internal/infra/openai"
	"tg-channel-digest/internal/usecase/digest"
	"tg-channel-digest/internal/usecase/sources"
)

func main() {
	cfg := config.Load()
	logger := infralog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.PGDSN); err != nil {
		log.Fatal().Err(err).Msg("api: не удалось применить миграции")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	web := fetcher.NewWeb(cfg.Fetch.GlobalRPS, logger)
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, "", 60*time.Second)
	oracleAdapter := oracle.NewOpenAI(openaiClient, cfg.OpenAI.Model, cfg.OpenAI.MaxTokens, logger)

	digestService := digest.NewService(repoAdapter, repoAdapter, oracleAdapter, logger)
	sourcesService := sources.NewService(repoAdapter, repoAdapter, repoAdapter, web, oracleAdapter, cfg.Tracking.BootstrapSampleLimit, logger)

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/api/v1/users/{id}/digest", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserID(w, r)
		if !ok {
			return
		}
		text, err := digestService.Build(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Msg("api: построение дайджеста")
			writeError(w, http.StatusInternalServerError, "failed to build digest")
			return
		}
		writeJSON(w, map[string]string{"digest": text})
	})

	r.Get("/api/v1/users/{id}/posts/unread", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserID(w, r)
		if !ok {
			return
		}
		posts, err := repoAdapter.ListUnread(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Msg("api: список непрочитанных")
			writeError(w, http.StatusInternalServerError, "failed to list posts")
			return
		}
		items := make([]unreadPostResponse, 0, len(posts))
		for _, post := range posts {
			items = append(items, unreadPostResponse{
				ID:         post.ID,
				Channel:    post.ChannelUsername,
				PostID:     post.PostID,
				Summary:    post.Summary,
				PostNumber: post.PostNumber,
			})
		}
		writeJSON(w, map[string]any{"posts": items})
	})

	r.Get("/api/v1/users/{id}/channels", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserID(w, r)
		if !ok {
			return
		}
		list, err := sourcesService.List(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Msg("api: список каналов")
			writeError(w, http.StatusInternalServerError, "failed to list channels")
			return
		}
		items := make([]channelResponse, 0, len(list))
		for _, info := range list {
			items = append(items, channelResponse{
				Username:    info.Channel.Username,
				IsNew:       info.Channel.IsNew,
				Description: info.Description,
			})
		}
		writeJSON(w, map[string]any{"channels": items})
	})

	r.Post("/api/v1/users/{id}/channels", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserID(w, r)
		if !ok {
			return
		}
		defer r.Body.Close()
		var req addChannelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		info, err := sourcesService.Add(r.Context(), userID, req.Username)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrTrackingActive):
				writeError(w, http.StatusConflict, "tracking is active")
			case errors.Is(err, domain.ErrSourceExists):
				writeError(w, http.StatusConflict, "channel already tracked")
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		writeJSON(w, channelResponse{
			Username:    info.Channel.Username,
			IsNew:       info.Channel.IsNew,
			Description: info.Description,
		})
	})

	r.Delete("/api/v1/users/{id}/channels/{username}", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserID(w, r)
		if !ok {
			return
		}
		err := sourcesService.Remove(r.Context(), userID, chi.URLParam(r, "username"))
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrTrackingActive):
				writeError(w, http.StatusConflict, "tracking is active")
			case errors.Is(err, domain.ErrSourceNotFound):
				writeError(w, http.StatusNotFound, "channel not found")
			default:
				writeError(w, http.StatusBadRequest, err.Error())
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Put("/api/v1/users/{id}/tracking", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUserID(w, r)
		if !ok {
			return
		}
		defer r.Body.Close()
		var req trackingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		var switchErr error
		if req.Active {
			switchErr = sourcesService.Activate(r.Context(), userID)
		} else {
			switchErr = sourcesService.Deactivate(r.Context(), userID)
		}
		if switchErr != nil {
			if errors.Is(switchErr, domain.ErrNoSources) {
				writeError(w, http.StatusConflict, "no channels to track")
				return
			}
			log.Error().Err(switchErr).Msg("api: переключение отслеживания")
			writeError(w, http.StatusInternalServerError, "failed to switch tracking")
			return
		}
		writeJSON(w, map[string]bool{"active": req.Active})
	})

	srv := &http.Server{Addr: ":8080", Handler: r}
	metrics.StartServer(ctx, log.With().Str("component", "metrics").Logger(), ":9090")
	go func() {
		log.Info().Msg("api: старт")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

type addChannelRequest struct {
	Username string `json:"username"`
}

type trackingRequest struct {
	Active bool `json:"active"`
}

type channelResponse struct {
	Username    string `json:"username"`
	IsNew       bool   `json:"is_new"`
	Description string `json:"description,omitempty"`
}

type unreadPostResponse struct {
	ID         int64  `json:"id"`
	Channel    string `json:"channel"`
	PostID     string `json:"post_id"`
	Summary    string `json:"summary"`
	PostNumber int64  `json:"post_number"`
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
