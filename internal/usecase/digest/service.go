package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-channel-digest/internal/domain"
	"tg-channel-digest/internal/infra/metrics"
)

// Service строит дайджест непрочитанных постов пользователя.
type Service struct {
	posts        domain.PostRepo
	descriptions domain.DescriptionRepo
	oracle       domain.Oracle
	log          zerolog.Logger
}

// NewService создаёт построитель дайджеста.
func NewService(posts domain.PostRepo, descriptions domain.DescriptionRepo, oracle domain.Oracle, logger zerolog.Logger) *Service {
	return &Service{
		posts:        posts,
		descriptions: descriptions,
		oracle:       oracle,
		log:          logger.With().Str("component", "digest").Logger(),
	}
}

// Build собирает дайджест: группирует непрочитанные посты по каналам в
// порядке сквозных номеров, пересуммаризует каждый и отбрасывает мусор.
// Каждый пост исходного набора помечается прочитанным независимо от того,
// попал ли он в дайджест.
func (s *Service) Build(ctx context.Context, userID int64) (string, error) {
	start := time.Now()
	defer func() {
		metrics.DigestBuildSeconds.Observe(time.Since(start).Seconds())
	}()
	metrics.IncDigestOverall()
	metrics.IncDigestForUser(userID)

	unread, err := s.posts.ListUnread(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list unread: %w", err)
	}
	if len(unread) == 0 {
		return domain.DigestEmpty, nil
	}

	// Группировка по каналам с сохранением порядка первого появления.
	var order []string
	byChannel := make(map[string][]domain.Post)
	for _, post := range unread {
		if _, ok := byChannel[post.ChannelUsername]; !ok {
			order = append(order, post.ChannelUsername)
		}
		byChannel[post.ChannelUsername] = append(byChannel[post.ChannelUsername], post)
	}

	var sections []Section
	for _, username := range order {
		section := Section{Channel: username}
		description := s.channelDescription(ctx, userID, username)

		for _, post := range byChannel[username] {
			entry, ok := s.summarize(ctx, post, description)
			if ok {
				section.Entries = append(section.Entries, entry)
			}
		}
		if len(section.Entries) > 0 {
			sections = append(sections, section)
		}
	}

	// Прочитанность монотонна и не зависит от попадания поста в дайджест.
	for _, post := range unread {
		if err := s.posts.MarkRead(ctx, userID, post.ID); err != nil {
			s.log.Error().Err(err).Int64("post", post.ID).Msg("не удалось пометить пост прочитанным")
		}
	}

	if len(sections) == 0 {
		return domain.DigestNothingUseful, nil
	}
	return Render(sections), nil
}

// summarize строит дайджестную выжимку поста. Нерелевантный или пустой
// результат означает мусор: пост в дайджест не попадает.
func (s *Service) summarize(ctx context.Context, post domain.Post, description string) (Entry, bool) {
	if !s.oracle.IsRelevant(ctx, post.Content, description) {
		return Entry{}, false
	}
	summary := s.oracle.SummarizeOne(ctx, post.Content, description)
	if strings.TrimSpace(summary) == "" {
		return Entry{}, false
	}
	return Entry{
		Summary: summary,
		Link:    PostLink(post.ChannelUsername, post.PostID),
	}, true
}

func (s *Service) channelDescription(ctx context.Context, userID int64, username string) string {
	desc, err := s.descriptions.GetDescription(ctx, userID, username)
	if err != nil {
		s.log.Warn().Err(err).Str("channel", username).Msg("не удалось получить описание канала")
		return domain.NoDescription
	}
	if desc.Detailed != "" {
		return desc.Detailed
	}
	if desc.Short != "" {
		return desc.Short
	}
	return domain.NoDescription
}
