package oracle

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"tg-channel-digest/internal/domain"
	openai "tg-channel-digest/internal/infra/openai"
)

type stubChat struct {
	answer  string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (s *stubChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatMessage{Content: s.answer}}},
	}, nil
}

func newTestOracle(chat *stubChat) *OpenAI {
	return NewOpenAI(chat, "gpt-4o-mini", 500, zerolog.Nop())
}

func TestParseAffirmative(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"да", true},
		{"Да", true},
		{"ДА!", true},
		{"да.", true},
		{"  Да  ", true},
		{"нет", false},
		{"Нет.", false},
		{"да, конечно", false},
		{"yes", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := parseAffirmative(tc.in); got != tc.want {
			t.Fatalf("parseAffirmative(%q) = %v, ожидалось %v", tc.in, got, tc.want)
		}
	}
}

func TestIsRelevantUsesSmallTokenBudget(t *testing.T) {
	chat := &stubChat{answer: "Да"}
	o := newTestOracle(chat)

	if !o.IsRelevant(context.Background(), "пост", "описание") {
		t.Fatalf("ответ «Да» должен давать true")
	}
	if chat.lastReq.MaxTokens != yesNoTokens {
		t.Fatalf("бинарная проверка должна использовать бюджет %d, получено %d", yesNoTokens, chat.lastReq.MaxTokens)
	}
}

func TestIsRelevantDegradesToFalse(t *testing.T) {
	o := newTestOracle(&stubChat{err: errors.New("api недоступен")})
	if o.IsRelevant(context.Background(), "пост", "описание") {
		t.Fatalf("при сбое релевантность должна быть false")
	}
}

func TestIsRelevantEmptyInputs(t *testing.T) {
	o := newTestOracle(&stubChat{answer: "Да"})
	if o.IsRelevant(context.Background(), "", "описание") {
		t.Fatalf("пустой пост нерелевантен")
	}
	if o.IsRelevant(context.Background(), "пост", "  ") {
		t.Fatalf("без описания пост нерелевантен")
	}
}

func TestSummarizeOneDegradesToMarker(t *testing.T) {
	o := newTestOracle(&stubChat{err: errors.New("api недоступен")})
	got := o.SummarizeOne(context.Background(), "пост", "описание")
	if got != domain.SummaryUnavailable {
		t.Fatalf("при сбое ожидался маркер, получено %q", got)
	}
}

func TestSummarizeManySkipsEmptyTexts(t *testing.T) {
	chat := &stubChat{answer: "выжимка"}
	o := newTestOracle(chat)

	got := o.SummarizeMany(context.Background(), []string{" ", ""}, "описание")
	if got != "" {
		t.Fatalf("для пустого набора текстов выжимка должна быть пустой, получено %q", got)
	}
	if chat.lastReq.Model != "" {
		t.Fatalf("оракул не должен был вызываться")
	}
}

func TestSummarizeManyUsesConfiguredBudget(t *testing.T) {
	chat := &stubChat{answer: "выжимка"}
	o := newTestOracle(chat)

	got := o.SummarizeMany(context.Background(), []string{"первый", "второй"}, "описание")
	if got != "выжимка" {
		t.Fatalf("неожиданная выжимка: %q", got)
	}
	if chat.lastReq.MaxTokens != 500 {
		t.Fatalf("ожидался бюджет 500 токенов, получено %d", chat.lastReq.MaxTokens)
	}
}

func TestDedupeEchoesInputOnFailure(t *testing.T) {
	o := newTestOracle(&stubChat{err: errors.New("api недоступен")})
	in := []string{"первая", "вторая"}
	got := o.Dedupe(context.Background(), in)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("при сбое вход должен вернуться без изменений: %v", got)
	}
}

func TestDedupeSplitsAnswer(t *testing.T) {
	o := newTestOracle(&stubChat{answer: "первая мысль\n\nвторая мысль"})
	got := o.Dedupe(context.Background(), []string{"а", "б", "в"})
	want := []string{"первая мысль", "вторая мысль"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ответ должен разбиваться по пустой строке: %v", got)
	}
}

func TestDescribeDegradesToMarker(t *testing.T) {
	o := newTestOracle(&stubChat{err: errors.New("api недоступен")})

	if got := o.DescribeShort(context.Background(), []string{"пост"}); got != domain.DescriptionUnavailable {
		t.Fatalf("краткое описание при сбое: %q", got)
	}
	if got := o.DescribeDetailed(context.Background(), []string{"пост"}); got != domain.DescriptionUnavailable {
		t.Fatalf("подробное описание при сбое: %q", got)
	}
}

func TestDescribeEmptySample(t *testing.T) {
	o := newTestOracle(&stubChat{answer: "не должно вызываться"})
	if got := o.DescribeShort(context.Background(), nil); got != domain.NoDescription {
		t.Fatalf("без выборки должно вернуться %q, получено %q", domain.NoDescription, got)
	}
}
