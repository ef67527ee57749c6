package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"tg-channel-digest/internal/domain"
)

// SourceInfo — источник вместе с кратким описанием для списка каналов.
type SourceInfo struct {
	Channel     domain.Channel
	Description string
}

// Service управляет списком источников пользователя и флагом отслеживания.
// Изменение списка запрещено при активном отслеживании.
type Service struct {
	sources      domain.SourceRepo
	descriptions domain.DescriptionRepo
	states       domain.StateRepo
	fetcher      domain.Fetcher
	oracle       domain.Oracle
	sampleLimit  int
	log          zerolog.Logger
}

// NewService создаёт сервис источников.
func NewService(
	sources domain.SourceRepo,
	descriptions domain.DescriptionRepo,
	states domain.StateRepo,
	fetcher domain.Fetcher,
	oracle domain.Oracle,
	sampleLimit int,
	logger zerolog.Logger,
) *Service {
	if sampleLimit <= 0 {
		sampleLimit = 30
	}
	return &Service{
		sources:      sources,
		descriptions: descriptions,
		states:       states,
		fetcher:      fetcher,
		oracle:       oracle,
		sampleLimit:  sampleLimit,
		log:          logger.With().Str("component", "sources").Logger(),
	}
}

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

// ParseUsername нормализует ввод пользователя: срезает @, формы t.me/
// и https://t.me/, проверяет допустимые символы.
func ParseUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	username = strings.TrimPrefix(username, "https://")
	username = strings.TrimPrefix(username, "http://")
	username = strings.TrimPrefix(username, "t.me/s/")
	username = strings.TrimPrefix(username, "t.me/")
	username = strings.TrimPrefix(username, "@")
	username = strings.TrimSuffix(username, "/")
	if !usernameRe.MatchString(username) {
		return "", fmt.Errorf("некорректное имя канала: %q", raw)
	}
	return username, nil
}

// Add нормализует имя, делает стартовую выборку, генерирует описания и
// сохраняет источник. Запрещено при активном отслеживании.
func (s *Service) Add(ctx context.Context, userID int64, raw string) (SourceInfo, error) {
	active, err := s.states.IsActive(ctx, userID)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("check state: %w", err)
	}
	if active {
		return SourceInfo{}, domain.ErrTrackingActive
	}

	username, err := ParseUsername(raw)
	if err != nil {
		return SourceInfo{}, err
	}

	// Стартовая выборка для описаний. Сбой фетчера не блокирует добавление:
	// описания деградируют, канал всё равно сохраняется.
	sample, err := s.fetcher.FetchLast(ctx, username, s.sampleLimit)
	if err != nil {
		s.log.Warn().Err(err).Str("channel", username).Msg("стартовая выборка не удалась")
		sample = nil
	}
	texts := make([]string, 0, len(sample))
	for _, post := range sample {
		if !domain.IsMediaPlaceholder(post.Text) {
			texts = append(texts, post.Text)
		}
	}

	short := s.oracle.DescribeShort(ctx, texts)
	detailed := s.oracle.DescribeDetailed(ctx, texts)

	channel, err := s.sources.AddSource(ctx, userID, username)
	if err != nil {
		return SourceInfo{}, err
	}
	if err := s.descriptions.UpsertShortDescription(ctx, userID, username, short); err != nil {
		return SourceInfo{}, fmt.Errorf("save short description: %w", err)
	}
	if err := s.descriptions.UpsertDetailedDescription(ctx, userID, username, detailed); err != nil {
		return SourceInfo{}, fmt.Errorf("save detailed description: %w", err)
	}

	s.log.Info().Int64("user_id", userID).Str("channel", username).Msg("канал добавлен")
	return SourceInfo{Channel: channel, Description: short}, nil
}

// Remove удаляет источник с каскадом. Запрещено при активном отслеживании.
func (s *Service) Remove(ctx context.Context, userID int64, raw string) error {
	active, err := s.states.IsActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("check state: %w", err)
	}
	if active {
		return domain.ErrTrackingActive
	}

	username, err := ParseUsername(raw)
	if err != nil {
		return err
	}
	if err := s.sources.RemoveSource(ctx, userID, username); err != nil {
		return err
	}
	s.log.Info().Int64("user_id", userID).Str("channel", username).Msg("канал удалён")
	return nil
}

// List возвращает источники пользователя с краткими описаниями.
func (s *Service) List(ctx context.Context, userID int64) ([]SourceInfo, error) {
	channels, err := s.sources.ListSources(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	result := make([]SourceInfo, 0, len(channels))
	for _, channel := range channels {
		desc, err := s.descriptions.GetDescription(ctx, userID, channel.Username)
		if err != nil {
			s.log.Warn().Err(err).Str("channel", channel.Username).Msg("не удалось получить описание")
		}
		result = append(result, SourceInfo{Channel: channel, Description: desc.Short})
	}
	return result, nil
}

// Activate включает отслеживание. Требует хотя бы один источник.
func (s *Service) Activate(ctx context.Context, userID int64) error {
	channels, err := s.sources.ListSources(ctx, userID)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	if len(channels) == 0 {
		return domain.ErrNoSources
	}
	return s.states.SetActive(ctx, userID, true)
}

// Deactivate выключает отслеживание.
func (s *Service) Deactivate(ctx context.Context, userID int64) error {
	return s.states.SetActive(ctx, userID, false)
}

// IsActive сообщает текущее состояние отслеживания.
func (s *Service) IsActive(ctx context.Context, userID int64) (bool, error) {
	return s.states.IsActive(ctx, userID)
}
