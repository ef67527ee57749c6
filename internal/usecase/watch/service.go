package watch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-channel-digest/internal/domain"
)

// cycler — конвейер допуска, который гоняет наблюдатель.
type cycler interface {
	RunCycle(ctx context.Context, userID int64) ([]string, error)
}

// Service держит по одному циклу опроса на активного пользователя.
// Реестр отображает пользователя в функцию отмены его цикла; Start
// идемпотентен, Stop срабатывает между точками ожидания.
type Service struct {
	tracker  cycler
	oracle   domain.Oracle
	interval time.Duration
	log      zerolog.Logger

	mu       sync.Mutex
	notifier domain.Notifier
	running  map[int64]context.CancelFunc
	wg       sync.WaitGroup
}

// NewService создаёт наблюдатель.
func NewService(tracker cycler, oracle domain.Oracle, interval time.Duration, logger zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Service{
		tracker:  tracker,
		oracle:   oracle,
		interval: interval,
		log:      logger.With().Str("component", "watch").Logger(),
		running:  make(map[int64]context.CancelFunc),
	}
}

// SetNotifier задаёт доставку выжимок. Вызывается один раз при сборке
// приложения, до первого Start.
func (s *Service) SetNotifier(n domain.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Start запускает цикл опроса пользователя. Повторный запуск — no-op.
func (s *Service) Start(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.running[userID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running[userID] = cancel
	s.wg.Add(1)
	go s.loop(ctx, userID)
	s.log.Info().Int64("user_id", userID).Msg("цикл опроса запущен")
}

// Stop останавливает цикл опроса пользователя.
func (s *Service) Stop(userID int64) {
	s.mu.Lock()
	cancel, ok := s.running[userID]
	if ok {
		delete(s.running, userID)
	}
	s.mu.Unlock()

	if ok {
		cancel()
		s.log.Info().Int64("user_id", userID).Msg("цикл опроса остановлен")
	}
}

// StopAll останавливает все циклы и дожидается их завершения.
func (s *Service) StopAll() {
	s.mu.Lock()
	for userID, cancel := range s.running {
		cancel()
		delete(s.running, userID)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Running сообщает, запущен ли цикл пользователя.
func (s *Service) Running(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[userID]
	return ok
}

func (s *Service) loop(ctx context.Context, userID int64) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunCycle(ctx, userID)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunCycle выполняет один цикл: допуск по всем источникам, удаление
// дубликатов среди собранных выжимок и доставка. Сбой хранилища роняет
// только текущий цикл; интервал фиксированный, без backoff.
func (s *Service) RunCycle(ctx context.Context, userID int64) {
	summaries, err := s.tracker.RunCycle(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("цикл допуска не удался")
		return
	}
	if len(summaries) == 0 {
		return
	}
	if len(summaries) > 1 {
		summaries = s.oracle.Dedupe(ctx, summaries)
	}

	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	if notifier != nil {
		notifier.NotifyNewPosts(ctx, userID, summaries)
	}
}
