package repo

import (
	"context"
	"testing"

	"tg-channel-digest/internal/domain"
)

func TestMemoryAddPostIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	inserted, number, err := store.AddPost(ctx, 1, domain.Post{ChannelUsername: "news", PostID: "news/10", Content: "текст", Summary: "выжимка"})
	if err != nil {
		t.Fatalf("первый допуск: %v", err)
	}
	if !inserted || number != 1 {
		t.Fatalf("ожидалась вставка с номером 1, получено inserted=%v number=%d", inserted, number)
	}

	inserted, number, err = store.AddPost(ctx, 1, domain.Post{ChannelUsername: "news", PostID: "news/10", Content: "текст", Summary: "выжимка"})
	if err != nil {
		t.Fatalf("повторный допуск не должен быть ошибкой: %v", err)
	}
	if inserted || number != 0 {
		t.Fatalf("повторный допуск должен быть no-op, получено inserted=%v number=%d", inserted, number)
	}

	next, err := store.NextSequenceNumber(ctx, 1)
	if err != nil {
		t.Fatalf("следующий номер: %v", err)
	}
	if next != 2 {
		t.Fatalf("повторный допуск не должен расходовать номер, ожидалось 2, получено %d", next)
	}
}

func TestMemorySequenceNumbersMonotonicWithoutGaps(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	ids := []string{"a/1", "b/2", "a/3", "c/4"}
	for i, id := range ids {
		inserted, number, err := store.AddPost(ctx, 7, domain.Post{ChannelUsername: "x", PostID: id})
		if err != nil {
			t.Fatalf("допуск %q: %v", id, err)
		}
		if !inserted {
			t.Fatalf("пост %q должен быть вставлен", id)
		}
		if number != int64(i+1) {
			t.Fatalf("ожидался номер %d для %q, получен %d", i+1, id, number)
		}
	}

	// Нумерация каждого пользователя независима.
	_, number, err := store.AddPost(ctx, 8, domain.Post{ChannelUsername: "x", PostID: "a/1"})
	if err != nil {
		t.Fatalf("допуск для второго пользователя: %v", err)
	}
	if number != 1 {
		t.Fatalf("нумерация второго пользователя должна начинаться с 1, получено %d", number)
	}
}

func TestMemoryRemoveSourceCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, err := store.AddSource(ctx, 1, "news"); err != nil {
		t.Fatalf("добавление канала: %v", err)
	}
	if _, err := store.AddSource(ctx, 1, "tech"); err != nil {
		t.Fatalf("добавление второго канала: %v", err)
	}
	if _, _, err := store.AddPost(ctx, 1, domain.Post{ChannelUsername: "news", PostID: "news/1"}); err != nil {
		t.Fatalf("допуск поста: %v", err)
	}
	if _, _, err := store.AddPost(ctx, 1, domain.Post{ChannelUsername: "tech", PostID: "tech/1"}); err != nil {
		t.Fatalf("допуск поста: %v", err)
	}
	if err := store.UpsertShortDescription(ctx, 1, "news", "новости"); err != nil {
		t.Fatalf("описание: %v", err)
	}

	if err := store.RemoveSource(ctx, 1, "news"); err != nil {
		t.Fatalf("удаление канала: %v", err)
	}

	channels, _ := store.ListSources(ctx, 1)
	if len(channels) != 1 || channels[0].Username != "tech" {
		t.Fatalf("должен остаться только tech, получено %+v", channels)
	}

	unread, _ := store.ListUnread(ctx, 1)
	if len(unread) != 1 || unread[0].ChannelUsername != "tech" {
		t.Fatalf("посты удалённого канала должны исчезнуть, получено %+v", unread)
	}

	desc, _ := store.GetDescription(ctx, 1, "news")
	if desc.Short != "" {
		t.Fatalf("описание удалённого канала должно исчезнуть, получено %q", desc.Short)
	}

	if err := store.RemoveSource(ctx, 1, "news"); err != domain.ErrSourceNotFound {
		t.Fatalf("повторное удаление должно вернуть ErrSourceNotFound, получено %v", err)
	}
}

func TestMemoryMarkReadMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, _, err := store.AddPost(ctx, 1, domain.Post{ChannelUsername: "news", PostID: "news/1"})
	if err != nil {
		t.Fatalf("допуск поста: %v", err)
	}
	unread, _ := store.ListUnread(ctx, 1)
	if len(unread) != 1 {
		t.Fatalf("ожидался один непрочитанный пост, получено %d", len(unread))
	}

	if err := store.MarkRead(ctx, 1, unread[0].ID); err != nil {
		t.Fatalf("пометка прочитанным: %v", err)
	}
	// Повторная пометка — no-op.
	if err := store.MarkRead(ctx, 1, unread[0].ID); err != nil {
		t.Fatalf("повторная пометка не должна быть ошибкой: %v", err)
	}

	unread, _ = store.ListUnread(ctx, 1)
	if len(unread) != 0 {
		t.Fatalf("прочитанный пост не должен возвращаться, получено %d", len(unread))
	}
}

func TestMemorySourceFlags(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	ch, err := store.AddSource(ctx, 1, "news")
	if err != nil {
		t.Fatalf("добавление канала: %v", err)
	}
	if !ch.IsNew {
		t.Fatalf("новый канал должен иметь IsNew=true")
	}
	if _, err := store.AddSource(ctx, 1, "news"); err != domain.ErrSourceExists {
		t.Fatalf("повторное добавление должно вернуть ErrSourceExists, получено %v", err)
	}

	if err := store.SetSourceEstablished(ctx, 1, "news"); err != nil {
		t.Fatalf("сброс флага: %v", err)
	}
	channels, _ := store.ListSources(ctx, 1)
	if channels[0].IsNew {
		t.Fatalf("после сброса флаг IsNew должен быть false")
	}
}

func TestMemoryStateDefaultsToInactive(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	active, err := store.IsActive(ctx, 42)
	if err != nil {
		t.Fatalf("чтение состояния: %v", err)
	}
	if active {
		t.Fatalf("состояние по умолчанию должно быть неактивным")
	}

	if err := store.SetActive(ctx, 42, true); err != nil {
		t.Fatalf("включение: %v", err)
	}
	active, _ = store.IsActive(ctx, 42)
	if !active {
		t.Fatalf("после включения состояние должно быть активным")
	}
}
