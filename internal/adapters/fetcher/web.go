package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"tg-channel-digest/internal/domain"
	"tg-channel-digest/internal/infra/metrics"
)

const previewBaseURL = "https://t.me/s/"

// Web выбирает последние посты публичного канала со страницы предпросмотра
// t.me/s/<username>. Лимитер общий на все циклы опроса; кэш страницы
// опционален и хранит только сырой HTML, поэтому состояние пользователей
// через него не смешивается.
type Web struct {
	http     *http.Client
	limiter  *rate.Limiter
	cache    domain.Cache
	cacheTTL time.Duration
	log      zerolog.Logger
}

var _ domain.Fetcher = (*Web)(nil)

// NewWeb создаёт фетчер с глобальным лимитом запросов в секунду.
func NewWeb(rps int, logger zerolog.Logger) *Web {
	if rps <= 0 {
		rps = 1
	}
	return &Web{
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     logger.With().Str("component", "fetcher").Logger(),
	}
}

// WithPageCache включает кэширование сырых страниц на указанный TTL.
func (w *Web) WithPageCache(cache domain.Cache, ttl time.Duration) *Web {
	w.cache = cache
	w.cacheTTL = ttl
	return w
}

// FetchLast возвращает до limit последних постов канала в порядке выдачи
// страницы. Транспортная ошибка возвращается как error.
func (w *Web) FetchLast(ctx context.Context, username string, limit int) ([]domain.FetchedPost, error) {
	if limit <= 0 {
		return nil, nil
	}
	page, err := w.loadPage(ctx, username)
	if err != nil {
		metrics.FetchErrors.Inc()
		return nil, err
	}
	posts, err := parsePreviewPage(page, limit)
	if err != nil {
		metrics.FetchErrors.Inc()
		return nil, err
	}
	w.log.Debug().Str("channel", username).Int("count", len(posts)).Msg("посты выбраны")
	return posts, nil
}

func (w *Web) loadPage(ctx context.Context, username string) ([]byte, error) {
	cacheKey := "fetch:page:" + username
	if w.cache != nil {
		if page, err := w.cache.Get(cacheKey); err == nil && len(page) > 0 {
			return page, nil
		}
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, previewBaseURL+username, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := w.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("fetcher", "get_preview", username, start, err)
		return nil, fmt.Errorf("fetch %s: %w", username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("fetch %s: unexpected status %d", username, resp.StatusCode)
		metrics.ObserveNetworkRequest("fetcher", "get_preview", username, start, err)
		return nil, err
	}

	page, err := io.ReadAll(resp.Body)
	metrics.ObserveNetworkRequest("fetcher", "get_preview", username, start, err)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	if w.cache != nil && w.cacheTTL > 0 {
		if err := w.cache.Set(cacheKey, page, w.cacheTTL); err != nil {
			w.log.Warn().Err(err).Str("channel", username).Msg("не удалось закэшировать страницу")
		}
	}
	return page, nil
}

func parsePreviewPage(page []byte, limit int) ([]domain.FetchedPost, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var posts []domain.FetchedPost
	doc.Find(".tgme_widget_message").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		id, ok := sel.Attr("data-post")
		if !ok || id == "" {
			return true
		}
		posts = append(posts, domain.FetchedPost{ID: id, Text: messageText(sel)})
		return len(posts) < limit
	})
	return posts, nil
}

// messageText извлекает текст поста либо подставляет медиа-плейсхолдер.
func messageText(sel *goquery.Selection) string {
	text := strings.TrimSpace(sel.Find(".tgme_widget_message_text").First().Text())
	if text != "" {
		return text
	}
	switch {
	case sel.Find(".tgme_widget_message_photo_wrap").Length() > 0:
		return domain.PlaceholderPhoto
	case sel.Find(".tgme_widget_message_video_player").Length() > 0:
		return domain.PlaceholderVideo
	case sel.Find(".tgme_widget_message_video_wrap").Length() > 0:
		return domain.PlaceholderVideo
	case sel.Find(".tgme_widget_message_gif_player").Length() > 0:
		return domain.PlaceholderGIF
	case sel.Find(".tgme_widget_message_document").Length() > 0:
		return domain.PlaceholderDocument
	default:
		return domain.PlaceholderMedia
	}
}
