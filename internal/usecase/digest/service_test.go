package digest

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"tg-channel-digest/internal/adapters/repo"
	"tg-channel-digest/internal/domain"
)

type stubOracle struct {
	relevant map[string]bool
	summary  map[string]string
}

func (o *stubOracle) SummarizeOne(_ context.Context, text, _ string) string {
	if s, ok := o.summary[text]; ok {
		return s
	}
	return "выжимка: " + text
}

func (o *stubOracle) SummarizeMany(ctx context.Context, texts []string, description string) string {
	return o.SummarizeOne(ctx, strings.Join(texts, " "), description)
}

func (o *stubOracle) IsRelevant(_ context.Context, text, _ string) bool {
	if o.relevant == nil {
		return true
	}
	relevant, ok := o.relevant[text]
	return !ok || relevant
}

func (o *stubOracle) Dedupe(_ context.Context, summaries []string) []string { return summaries }
func (o *stubOracle) DescribeShort(_ context.Context, _ []string) string    { return "кратко" }
func (o *stubOracle) DescribeDetailed(_ context.Context, _ []string) string { return "подробно" }

func admit(t *testing.T, store *repo.Memory, userID int64, channel, postID, text string) domain.Post {
	t.Helper()
	inserted, _, err := store.AddPost(context.Background(), userID, domain.Post{
		ChannelUsername: channel,
		PostID:          postID,
		Content:         text,
		Summary:         "допускная выжимка",
	})
	if err != nil || !inserted {
		t.Fatalf("не удалось допустить пост %s: inserted=%v err=%v", postID, inserted, err)
	}
	unread, err := store.ListUnread(context.Background(), userID)
	if err != nil {
		t.Fatalf("список непрочитанных: %v", err)
	}
	return unread[len(unread)-1]
}

func TestBuildEmptyUnreadSet(t *testing.T) {
	store := repo.NewMemory()
	svc := NewService(store, store, &stubOracle{}, zerolog.Nop())

	text, err := svc.Build(context.Background(), 1)
	if err != nil {
		t.Fatalf("построение: %v", err)
	}
	if text != domain.DigestEmpty {
		t.Fatalf("ожидался маркер пустого дайджеста, получено %q", text)
	}
}

func TestBuildGroupsByChannelInOrder(t *testing.T) {
	store := repo.NewMemory()
	admit(t, store, 1, "alpha", "alpha/1", "пост А1")
	admit(t, store, 1, "beta", "beta/1", "пост Б1")
	admit(t, store, 1, "alpha", "alpha/2", "пост А2")

	svc := NewService(store, store, &stubOracle{}, zerolog.Nop())
	text, err := svc.Build(context.Background(), 1)
	if err != nil {
		t.Fatalf("построение: %v", err)
	}

	alphaIdx := strings.Index(text, "Канал: @alpha")
	betaIdx := strings.Index(text, "Канал: @beta")
	if alphaIdx < 0 || betaIdx < 0 {
		t.Fatalf("в дайджесте должны быть оба раздела: %q", text)
	}
	if alphaIdx > betaIdx {
		t.Fatalf("разделы должны идти в порядке первого появления: %q", text)
	}
	if !strings.Contains(text, "[Ссылка](https://t.me/alpha/1)") {
		t.Fatalf("ожидалась глубокая ссылка на пост: %q", text)
	}
	if strings.Count(text, "выжимка: ") != 3 {
		t.Fatalf("каждый пост должен получить дайджестную выжимку: %q", text)
	}
}

func TestBuildMarksEverythingReadIncludingJunk(t *testing.T) {
	store := repo.NewMemory()
	admit(t, store, 1, "news", "news/1", "полезный пост")
	admit(t, store, 1, "news", "news/2", "мусорный пост")

	oracle := &stubOracle{relevant: map[string]bool{"мусорный пост": false}}
	svc := NewService(store, store, oracle, zerolog.Nop())

	text, err := svc.Build(context.Background(), 1)
	if err != nil {
		t.Fatalf("построение: %v", err)
	}
	if strings.Contains(text, "мусорный") {
		t.Fatalf("мусор не должен попадать в дайджест: %q", text)
	}
	if !strings.Contains(text, "полезный") {
		t.Fatalf("полезный пост должен быть в дайджесте: %q", text)
	}

	unread, _ := store.ListUnread(context.Background(), 1)
	if len(unread) != 0 {
		t.Fatalf("все посты должны быть прочитаны, осталось %d", len(unread))
	}
}

func TestBuildAllJunk(t *testing.T) {
	store := repo.NewMemory()
	admit(t, store, 1, "news", "news/1", "мусор один")
	admit(t, store, 1, "news", "news/2", "мусор два")

	oracle := &stubOracle{relevant: map[string]bool{"мусор один": false, "мусор два": false}}
	svc := NewService(store, store, oracle, zerolog.Nop())

	text, err := svc.Build(context.Background(), 1)
	if err != nil {
		t.Fatalf("построение: %v", err)
	}
	if text != domain.DigestNothingUseful {
		t.Fatalf("ожидался маркер бесполезного дайджеста, получено %q", text)
	}

	unread, _ := store.ListUnread(context.Background(), 1)
	if len(unread) != 0 {
		t.Fatalf("мусор тоже должен быть помечен прочитанным, осталось %d", len(unread))
	}
}

func TestBuildEmptySummaryMeansJunk(t *testing.T) {
	store := repo.NewMemory()
	admit(t, store, 1, "news", "news/1", "пост без сути")

	oracle := &stubOracle{summary: map[string]string{"пост без сути": "   "}}
	svc := NewService(store, store, oracle, zerolog.Nop())

	text, err := svc.Build(context.Background(), 1)
	if err != nil {
		t.Fatalf("построение: %v", err)
	}
	if text != domain.DigestNothingUseful {
		t.Fatalf("пустая выжимка означает мусор, получено %q", text)
	}
}

func TestBuildSecondCallIsEmpty(t *testing.T) {
	store := repo.NewMemory()
	admit(t, store, 1, "news", "news/1", "пост")

	svc := NewService(store, store, &stubOracle{}, zerolog.Nop())
	if _, err := svc.Build(context.Background(), 1); err != nil {
		t.Fatalf("первое построение: %v", err)
	}

	text, err := svc.Build(context.Background(), 1)
	if err != nil {
		t.Fatalf("второе построение: %v", err)
	}
	if text != domain.DigestEmpty {
		t.Fatalf("повторный дайджест должен быть пустым, получено %q", text)
	}
}
