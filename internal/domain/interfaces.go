package domain

import (
	"context"
	"time"
)

// SourceRepo управляет каналами-источниками пользователя.
type SourceRepo interface {
	AddSource(ctx context.Context, userID int64, username string) (Channel, error)
	// RemoveSource удаляет канал и каскадно все его посты и описания.
	RemoveSource(ctx context.Context, userID int64, username string) error
	ListSources(ctx context.Context, userID int64) ([]Channel, error)
	// SetSourceEstablished сбрасывает флаг "новый канал" после первого прогона.
	SetSourceEstablished(ctx context.Context, userID int64, username string) error
}

// PostRepo управляет допущенными постами пользователя.
type PostRepo interface {
	// AddPost идемпотентно сохраняет пост по натуральному id и присваивает
	// следующий сквозной номер. Возвращает признак вставки и номер;
	// повторный допуск того же id — не ошибка.
	AddPost(ctx context.Context, userID int64, post Post) (bool, int64, error)
	IsAdmitted(ctx context.Context, userID int64, postID string) (bool, error)
	NextSequenceNumber(ctx context.Context, userID int64) (int64, error)
	ListUnread(ctx context.Context, userID int64) ([]Post, error)
	// MarkRead помечает пост прочитанным. Повторная пометка — no-op.
	MarkRead(ctx context.Context, userID int64, id int64) error
}

// DescriptionRepo управляет описаниями каналов.
type DescriptionRepo interface {
	UpsertShortDescription(ctx context.Context, userID int64, username, description string) error
	UpsertDetailedDescription(ctx context.Context, userID int64, username, description string) error
	GetDescription(ctx context.Context, userID int64, username string) (ChannelDescription, error)
}

// StateRepo хранит флаг активности отслеживания пользователя.
type StateRepo interface {
	SetActive(ctx context.Context, userID int64, active bool) error
	IsActive(ctx context.Context, userID int64) (bool, error)
}

// Fetcher возвращает последние посты публичного канала в порядке выдачи.
// Транспортная ошибка возвращается как error; конвейер допуска обязан
// трактовать её как пустую выдачу.
type Fetcher interface {
	FetchLast(ctx context.Context, username string, limit int) ([]FetchedPost, error)
}

// Oracle — внешняя способность классификации и суммаризации текста.
// Каждая операция ограничена бюджетом токенов и при сбое транспорта
// возвращает безопасное деградированное значение вместо ошибки:
// выжимки — зарезервированный маркер, IsRelevant — false, Dedupe — вход
// без изменений, описания — маркер отсутствия описания.
type Oracle interface {
	SummarizeOne(ctx context.Context, text, description string) string
	SummarizeMany(ctx context.Context, texts []string, description string) string
	IsRelevant(ctx context.Context, text, description string) bool
	Dedupe(ctx context.Context, summaries []string) []string
	DescribeShort(ctx context.Context, texts []string) string
	DescribeDetailed(ctx context.Context, texts []string) string
}

// DigestQueue — очередь задач на построение дайджеста.
type DigestQueue interface {
	Enqueue(ctx context.Context, job DigestJob) error
	// Pop блокирующе читает задачу и уважает отмену контекста.
	Pop(ctx context.Context) (DigestJob, error)
}

// Notifier доставляет пользователю выжимки, собранные циклом опроса.
type Notifier interface {
	NotifyNewPosts(ctx context.Context, userID int64, summaries []string)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
