package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"tg-channel-digest/internal/adapters/repo"
	"tg-channel-digest/internal/domain"
)

type stubFetcher struct {
	posts     []domain.FetchedPost
	err       error
	lastLimit int
}

func (f *stubFetcher) FetchLast(_ context.Context, _ string, limit int) ([]domain.FetchedPost, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.posts, nil
}

type stubOracle struct {
	short    string
	detailed string
	texts    []string
}

func (o *stubOracle) SummarizeOne(_ context.Context, text, _ string) string       { return text }
func (o *stubOracle) SummarizeMany(_ context.Context, _ []string, _ string) string { return "" }
func (o *stubOracle) IsRelevant(_ context.Context, _, _ string) bool               { return true }
func (o *stubOracle) Dedupe(_ context.Context, summaries []string) []string        { return summaries }

func (o *stubOracle) DescribeShort(_ context.Context, texts []string) string {
	o.texts = texts
	if o.short != "" {
		return o.short
	}
	return "краткое описание"
}

func (o *stubOracle) DescribeDetailed(_ context.Context, _ []string) string {
	if o.detailed != "" {
		return o.detailed
	}
	return "подробное описание"
}

func newTestService(store *repo.Memory, fetch *stubFetcher, oracle *stubOracle) *Service {
	return NewService(store, store, store, fetch, oracle, 30, zerolog.Nop())
}

func TestParseUsername(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"@channel_name", "channel_name", true},
		{"channel_name", "channel_name", true},
		{"t.me/channel_name", "channel_name", true},
		{"https://t.me/channel_name", "channel_name", true},
		{"https://t.me/s/channel_name/", "channel_name", true},
		{"ab", "", false},
		{"канал", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseUsername(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseUsername(%q) = %q, %v; ожидалось %q", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseUsername(%q) должен вернуть ошибку", tc.in)
		}
	}
}

func TestAddGeneratesDescriptionsFromSample(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory()
	fetch := &stubFetcher{posts: []domain.FetchedPost{
		{ID: "news/1", Text: "текст поста"},
		{ID: "news/2", Text: "[Картинка]"},
	}}
	oracle := &stubOracle{short: "про новости", detailed: "канал о новостях"}
	svc := newTestService(store, fetch, oracle)

	info, err := svc.Add(ctx, 1, "@news")
	if err != nil {
		t.Fatalf("добавление: %v", err)
	}
	if info.Channel.Username != "news" {
		t.Fatalf("имя должно быть нормализовано, получено %q", info.Channel.Username)
	}
	if info.Description != "про новости" {
		t.Fatalf("ожидалось краткое описание, получено %q", info.Description)
	}
	if fetch.lastLimit != 30 {
		t.Fatalf("стартовая выборка должна быть глубиной 30, получено %d", fetch.lastLimit)
	}
	if len(oracle.texts) != 1 || oracle.texts[0] != "текст поста" {
		t.Fatalf("плейсхолдеры не должны попадать в выборку описаний: %v", oracle.texts)
	}

	desc, _ := store.GetDescription(ctx, 1, "news")
	if desc.Short != "про новости" || desc.Detailed != "канал о новостях" {
		t.Fatalf("описания должны сохраниться: %+v", desc)
	}
}

func TestAddAllowedWhenFetchFails(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory()
	fetch := &stubFetcher{err: errors.New("сеть недоступна")}
	svc := newTestService(store, fetch, &stubOracle{})

	if _, err := svc.Add(ctx, 1, "news"); err != nil {
		t.Fatalf("сбой выборки не должен блокировать добавление: %v", err)
	}
	channels, _ := store.ListSources(ctx, 1)
	if len(channels) != 1 {
		t.Fatalf("канал должен быть сохранён, получено %d", len(channels))
	}
}

func TestMutationsForbiddenWhileActive(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory()
	svc := newTestService(store, &stubFetcher{}, &stubOracle{})

	if _, err := svc.Add(ctx, 1, "news"); err != nil {
		t.Fatalf("добавление: %v", err)
	}
	if err := svc.Activate(ctx, 1); err != nil {
		t.Fatalf("активация: %v", err)
	}

	if _, err := svc.Add(ctx, 1, "tech"); !errors.Is(err, domain.ErrTrackingActive) {
		t.Fatalf("добавление при активном отслеживании должно вернуть ErrTrackingActive, получено %v", err)
	}
	if err := svc.Remove(ctx, 1, "news"); !errors.Is(err, domain.ErrTrackingActive) {
		t.Fatalf("удаление при активном отслеживании должно вернуть ErrTrackingActive, получено %v", err)
	}

	if err := svc.Deactivate(ctx, 1); err != nil {
		t.Fatalf("деактивация: %v", err)
	}
	if err := svc.Remove(ctx, 1, "news"); err != nil {
		t.Fatalf("после деактивации удаление должно работать: %v", err)
	}
}

func TestActivateRequiresSources(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory()
	svc := newTestService(store, &stubFetcher{}, &stubOracle{})

	if err := svc.Activate(ctx, 1); !errors.Is(err, domain.ErrNoSources) {
		t.Fatalf("активация без каналов должна вернуть ErrNoSources, получено %v", err)
	}
}

func TestListJoinsDescriptions(t *testing.T) {
	ctx := context.Background()
	store := repo.NewMemory()
	svc := newTestService(store, &stubFetcher{}, &stubOracle{short: "описание"})

	if _, err := svc.Add(ctx, 1, "news"); err != nil {
		t.Fatalf("добавление: %v", err)
	}
	list, err := svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("список: %v", err)
	}
	if len(list) != 1 || list[0].Description != "описание" {
		t.Fatalf("список должен содержать канал с описанием: %+v", list)
	}
}
