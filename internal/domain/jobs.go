package domain

import "time"

// DigestJob — задача на построение и доставку дайджеста.
// Кладётся ботом в очередь и разбирается воркером.
type DigestJob struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	ChatID     int64     `json:"chat_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
