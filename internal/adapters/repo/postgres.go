package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-channel-digest/internal/domain"
	"tg-channel-digest/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.SourceRepo      = (*Postgres)(nil)
	_ domain.PostRepo        = (*Postgres)(nil)
	_ domain.DescriptionRepo = (*Postgres)(nil)
	_ domain.StateRepo       = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// AddSource сохраняет новый канал-источник пользователя.
func (p *Postgres) AddSource(ctx context.Context, userID int64, username string) (domain.Channel, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var ch domain.Channel
	err := p.pool.QueryRow(ctx, `
INSERT INTO channels (user_id, username)
VALUES ($1, $2)
ON CONFLICT (user_id, username) DO NOTHING
RETURNING id, user_id, username, is_new, created_at
`, userID, username).Scan(&ch.ID, &ch.UserID, &ch.Username, &ch.IsNew, &ch.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "channels_insert", "channels", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Channel{}, domain.ErrSourceExists
	}
	if err != nil {
		return domain.Channel{}, fmt.Errorf("insert channel: %w", err)
	}
	return ch, nil
}

// RemoveSource удаляет канал и каскадно все его посты и описания
// в одной транзакции.
func (p *Postgres) RemoveSource(ctx context.Context, userID int64, username string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	tag, err := tx.Exec(ctx, `DELETE FROM channels WHERE user_id = $1 AND username = $2`, userID, username)
	metrics.ObserveNetworkRequest("postgres", "channels_delete", "channels", start, err)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSourceNotFound
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM posts WHERE user_id = $1 AND channel_username = $2`, userID, username)
	metrics.ObserveNetworkRequest("postgres", "posts_delete", "posts", start, err)
	if err != nil {
		return fmt.Errorf("delete posts: %w", err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM channel_descriptions WHERE user_id = $1 AND username = $2`, userID, username)
	metrics.ObserveNetworkRequest("postgres", "descriptions_delete", "channel_descriptions", start, err)
	if err != nil {
		return fmt.Errorf("delete descriptions: %w", err)
	}

	return tx.Commit(ctx)
}

// ListSources возвращает каналы пользователя в порядке добавления.
func (p *Postgres) ListSources(ctx context.Context, userID int64) ([]domain.Channel, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, username, is_new, created_at
FROM channels
WHERE user_id = $1
ORDER BY id
`, userID)
	metrics.ObserveNetworkRequest("postgres", "channels_select", "channels", start, err)
	if err != nil {
		return nil, fmt.Errorf("select channels: %w", err)
	}
	defer rows.Close()

	var result []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.UserID, &ch.Username, &ch.IsNew, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		result = append(result, ch)
	}
	return result, rows.Err()
}

// SetSourceEstablished сбрасывает флаг "новый канал".
func (p *Postgres) SetSourceEstablished(ctx context.Context, userID int64, username string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE channels SET is_new = FALSE WHERE user_id = $1 AND username = $2
`, userID, username)
	metrics.ObserveNetworkRequest("postgres", "channels_update", "channels", start, err)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSourceNotFound
	}
	return nil
}

// AddPost идемпотентно сохраняет пост и присваивает ему следующий сквозной
// номер пользователя. Нумерация сериализуется advisory-локом на user_id,
// чтобы номера шли подряд и без дыр даже при конкурентных допусках.
func (p *Postgres) AddPost(ctx context.Context, userID int64, post domain.Post) (bool, int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userID)
	metrics.ObserveNetworkRequest("postgres", "advisory_lock", "posts", start, err)
	if err != nil {
		return false, 0, fmt.Errorf("advisory lock: %w", err)
	}

	start = time.Now()
	var number int64
	err = tx.QueryRow(ctx, `
INSERT INTO posts (user_id, channel_username, post_id, content, summary, post_number)
SELECT $1, $2, $3, $4, $5,
       COALESCE((SELECT MAX(post_number) FROM posts WHERE user_id = $1), 0) + 1
ON CONFLICT (user_id, post_id) DO NOTHING
RETURNING post_number
`, userID, post.ChannelUsername, post.PostID, post.Content, post.Summary).Scan(&number)
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "posts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		// Пост уже был допущен раньше: не ошибка и не новая вставка.
		return false, 0, tx.Commit(ctx)
	}
	if err != nil {
		return false, 0, fmt.Errorf("insert post: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, 0, fmt.Errorf("commit tx: %w", err)
	}
	return true, number, nil
}

// IsAdmitted сообщает, был ли пост с таким натуральным id уже допущен.
func (p *Postgres) IsAdmitted(ctx context.Context, userID int64, postID string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS(SELECT 1 FROM posts WHERE user_id = $1 AND post_id = $2)
`, userID, postID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "posts_exists", "posts", start, err)
	if err != nil {
		return false, fmt.Errorf("check post: %w", err)
	}
	return exists, nil
}

// NextSequenceNumber возвращает номер, который получит следующий пост.
func (p *Postgres) NextSequenceNumber(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var max int64
	err := p.pool.QueryRow(ctx, `
SELECT COALESCE(MAX(post_number), 0) FROM posts WHERE user_id = $1
`, userID).Scan(&max)
	metrics.ObserveNetworkRequest("postgres", "posts_max_number", "posts", start, err)
	if err != nil {
		return 0, fmt.Errorf("select max number: %w", err)
	}
	return max + 1, nil
}

// ListUnread возвращает непрочитанные посты в порядке сквозных номеров.
func (p *Postgres) ListUnread(ctx context.Context, userID int64) ([]domain.Post, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, channel_username, post_id, content, summary, post_number, is_read, created_at
FROM posts
WHERE user_id = $1 AND NOT is_read
ORDER BY post_number
`, userID)
	metrics.ObserveNetworkRequest("postgres", "posts_select_unread", "posts", start, err)
	if err != nil {
		return nil, fmt.Errorf("select unread: %w", err)
	}
	defer rows.Close()

	var result []domain.Post
	for rows.Next() {
		var post domain.Post
		if err := rows.Scan(&post.ID, &post.UserID, &post.ChannelUsername, &post.PostID, &post.Content, &post.Summary, &post.PostNumber, &post.IsRead, &post.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		result = append(result, post)
	}
	return result, rows.Err()
}

// MarkRead помечает пост прочитанным. Обратного перехода нет.
func (p *Postgres) MarkRead(ctx context.Context, userID int64, id int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE posts SET is_read = TRUE WHERE user_id = $1 AND id = $2
`, userID, id)
	metrics.ObserveNetworkRequest("postgres", "posts_mark_read", "posts", start, err)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// UpsertShortDescription сохраняет краткое описание канала.
func (p *Postgres) UpsertShortDescription(ctx context.Context, userID int64, username, description string) error {
	return p.upsertDescription(ctx, userID, username, "short_description", description)
}

// UpsertDetailedDescription сохраняет подробное описание канала.
func (p *Postgres) UpsertDetailedDescription(ctx context.Context, userID int64, username, description string) error {
	return p.upsertDescription(ctx, userID, username, "detailed_description", description)
}

func (p *Postgres) upsertDescription(ctx context.Context, userID int64, username, column, description string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	// column подставляется только из двух констант выше.
	query := fmt.Sprintf(`
INSERT INTO channel_descriptions (user_id, username, %s)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, username) DO UPDATE SET %s = EXCLUDED.%s
`, column, column, column)

	start := time.Now()
	_, err := p.pool.Exec(ctx, query, userID, username, description)
	metrics.ObserveNetworkRequest("postgres", "descriptions_upsert", "channel_descriptions", start, err)
	if err != nil {
		return fmt.Errorf("upsert description: %w", err)
	}
	return nil
}

// GetDescription возвращает описания канала. Отсутствие строки — не ошибка.
func (p *Postgres) GetDescription(ctx context.Context, userID int64, username string) (domain.ChannelDescription, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	desc := domain.ChannelDescription{UserID: userID, Username: username}
	err := p.pool.QueryRow(ctx, `
SELECT short_description, detailed_description
FROM channel_descriptions
WHERE user_id = $1 AND username = $2
`, userID, username).Scan(&desc.Short, &desc.Detailed)
	metrics.ObserveNetworkRequest("postgres", "descriptions_select", "channel_descriptions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return desc, nil
	}
	if err != nil {
		return domain.ChannelDescription{}, fmt.Errorf("select description: %w", err)
	}
	return desc, nil
}

// SetActive переключает флаг активности отслеживания пользователя.
func (p *Postgres) SetActive(ctx context.Context, userID int64, active bool) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_states (user_id, is_active, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET is_active = EXCLUDED.is_active, updated_at = now()
`, userID, active)
	metrics.ObserveNetworkRequest("postgres", "states_upsert", "user_states", start, err)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// IsActive возвращает флаг активности; отсутствие строки трактуется как false.
func (p *Postgres) IsActive(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var active bool
	err := p.pool.QueryRow(ctx, `
SELECT is_active FROM user_states WHERE user_id = $1
`, userID).Scan(&active)
	metrics.ObserveNetworkRequest("postgres", "states_select", "user_states", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select state: %w", err)
	}
	return active, nil
}
