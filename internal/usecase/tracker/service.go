package tracker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"tg-channel-digest/internal/domain"
	"tg-channel-digest/internal/infra/metrics"
)

// Service — конвейер допуска: выбирает последние посты источников
// пользователя, идемпотентно сохраняет новые и готовит выжимки для
// уведомлений.
type Service struct {
	sources      domain.SourceRepo
	posts        domain.PostRepo
	descriptions domain.DescriptionRepo
	fetcher      domain.Fetcher
	oracle       domain.Oracle
	postLimit    int
	newLimit     int
	log          zerolog.Logger
}

// NewService создаёт конвейер допуска.
func NewService(
	sources domain.SourceRepo,
	posts domain.PostRepo,
	descriptions domain.DescriptionRepo,
	fetcher domain.Fetcher,
	oracle domain.Oracle,
	postLimit, newLimit int,
	logger zerolog.Logger,
) *Service {
	if postLimit <= 0 {
		postLimit = 8
	}
	if newLimit <= 0 {
		newLimit = 5
	}
	return &Service{
		sources:      sources,
		posts:        posts,
		descriptions: descriptions,
		fetcher:      fetcher,
		oracle:       oracle,
		postLimit:    postLimit,
		newLimit:     newLimit,
		log:          logger.With().Str("component", "tracker").Logger(),
	}
}

// RunCycle прогоняет допуск по всем источникам пользователя в порядке
// добавления и возвращает выжимки допущенных в этом цикле постов.
// Сбой одного источника логируется и не прерывает остальные.
func (s *Service) RunCycle(ctx context.Context, userID int64) ([]string, error) {
	channels, err := s.sources.ListSources(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	var summaries []string
	for _, channel := range channels {
		channelSummaries, err := s.runChannel(ctx, userID, channel)
		if err != nil {
			s.log.Error().Err(err).Int64("user_id", userID).Str("channel", channel.Username).Msg("сбой допуска по каналу")
		}
		summaries = append(summaries, channelSummaries...)
	}
	return summaries, nil
}

// runChannel обрабатывает один источник. Флаг "новый канал" сбрасывается
// после первого прогона ровно один раз — даже при пустой выдаче и даже
// при сбое фетчера.
func (s *Service) runChannel(ctx context.Context, userID int64, channel domain.Channel) ([]string, error) {
	defer func() {
		if channel.IsNew {
			if err := s.sources.SetSourceEstablished(ctx, userID, channel.Username); err != nil {
				s.log.Error().Err(err).Str("channel", channel.Username).Msg("не удалось сбросить флаг нового канала")
			}
		}
	}()

	limit := s.postLimit
	if channel.IsNew {
		limit = s.newLimit
	}

	fetched, err := s.fetcher.FetchLast(ctx, channel.Username, limit)
	if err != nil {
		// Сбой выборки трактуется как пустая выдача.
		s.log.Warn().Err(err).Str("channel", channel.Username).Msg("выборка не удалась, цикл продолжается")
		return nil, nil
	}

	var summaries []string
	for _, post := range fetched {
		summary, admitted, err := s.Admit(ctx, userID, channel.Username, post)
		if err != nil {
			return summaries, err
		}
		if admitted {
			summaries = append(summaries, fmt.Sprintf("📢 Канал: @%s\n\n%s", channel.Username, summary))
		}
	}
	return summaries, nil
}

// Admit идемпотентно допускает один пост. Для медиа-плейсхолдеров выжимка —
// сам плейсхолдер, оракул не вызывается. Проверка релевантности делается
// только для учёта: нерелевантный пост всё равно сохраняется.
func (s *Service) Admit(ctx context.Context, userID int64, channelUsername string, post domain.FetchedPost) (string, bool, error) {
	admitted, err := s.posts.IsAdmitted(ctx, userID, post.ID)
	if err != nil {
		return "", false, fmt.Errorf("check admitted: %w", err)
	}
	if admitted {
		return "", false, nil
	}

	var summary string
	if domain.IsMediaPlaceholder(post.Text) {
		summary = post.Text
	} else {
		desc, err := s.descriptions.GetDescription(ctx, userID, channelUsername)
		if err != nil {
			return "", false, fmt.Errorf("get description: %w", err)
		}
		description := desc.Detailed
		if description == "" {
			description = desc.Short
		}
		if description == "" {
			description = domain.NoDescription
		}

		if !s.oracle.IsRelevant(ctx, post.Text, description) {
			metrics.PostsOffTopic.Inc()
			s.log.Debug().Str("channel", channelUsername).Str("post_id", post.ID).Msg("пост вне тематики канала")
		}
		summary = s.oracle.SummarizeOne(ctx, post.Text, description)
	}

	inserted, number, err := s.posts.AddPost(ctx, userID, domain.Post{
		ChannelUsername: channelUsername,
		PostID:          post.ID,
		Content:         post.Text,
		Summary:         summary,
	})
	if err != nil {
		return "", false, fmt.Errorf("add post: %w", err)
	}
	if !inserted {
		// Конкурентный цикл успел первым: повторный допуск — no-op.
		return "", false, nil
	}

	metrics.PostsAdmitted.Inc()
	s.log.Info().Int64("user_id", userID).Str("channel", channelUsername).Str("post_id", post.ID).Int64("number", number).Msg("пост допущен")
	return summary, true, nil
}
