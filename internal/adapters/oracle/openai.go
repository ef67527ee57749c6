package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-channel-digest/internal/domain"
	openai "tg-channel-digest/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI реализует domain.Oracle через OpenAI Chat Completions.
// Сбой транспорта никогда не поднимается как ошибка: каждая операция
// возвращает деградированное значение, и конвейер продолжает работу.
type OpenAI struct {
	client    chatClient
	model     string
	maxTokens int
	timeout   time.Duration
	log       zerolog.Logger
}

var _ domain.Oracle = (*OpenAI)(nil)

// NewOpenAI создаёт оракула.
func NewOpenAI(client chatClient, model string, maxTokens int, logger zerolog.Logger) *OpenAI {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &OpenAI{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		timeout:   60 * time.Second,
		log:       logger.With().Str("component", "oracle").Logger(),
	}
}

// yesNoTokens — бюджет токенов для бинарных проверок.
const yesNoTokens = 10

func (o *OpenAI) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: system},
			{Role: openai.RoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("пустой ответ модели")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// SummarizeOne строит выжимку одного поста.
func (o *OpenAI) SummarizeOne(ctx context.Context, text, description string) string {
	return o.SummarizeMany(ctx, []string{text}, description)
}

// SummarizeMany строит одну выжимку по набору постов.
func (o *OpenAI) SummarizeMany(ctx context.Context, texts []string, description string) string {
	var nonEmpty []string
	for _, text := range texts {
		if strings.TrimSpace(text) != "" {
			nonEmpty = append(nonEmpty, text)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}

	var b strings.Builder
	for i, text := range nonEmpty {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Пост %d:\n%s", i+1, text)
	}

	summary, err := o.complete(ctx,
		"Ты — секретарь, который делает краткие и конкретные выжимки. Пиши только самое важное, без лишних слов.",
		fmt.Sprintf("Сделай краткую выжимку по этим постам. Пиши только самое важное, без повторов и лишних деталей:\n\n%s", b.String()),
		o.maxTokens)
	if err != nil {
		o.log.Error().Err(err).Msg("не удалось сгенерировать выжимку")
		return domain.SummaryUnavailable
	}
	return summary
}

// IsRelevant проверяет, соответствует ли текст тематике канала.
// Утвердительным считается только литеральный ответ «да».
func (o *OpenAI) IsRelevant(ctx context.Context, text, description string) bool {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(description) == "" {
		return false
	}

	user := fmt.Sprintf("Описание канала: %s\n\nПост: %s\n\nСоответствует ли пост тематике канала?"+
		"Ответь только 'Да' или 'Нет'."+
		"Если ты замечаешь, что пост - это реклама чего-либо (сервиса, приложения, другого канала), то"+
		"сразу пиши 'нет'."+
		"Ни в коем случае не добавляй разметку заголовков и подзаголовков.", description, text)

	decision, err := o.complete(ctx,
		"Ты — помощник, который анализирует, соответствует ли пост тематике канала.",
		user, yesNoTokens)
	if err != nil {
		o.log.Error().Err(err).Msg("не удалось проверить релевантность")
		return false
	}
	return parseAffirmative(decision)
}

// Dedupe убирает повторяющиеся мысли из набора выжимок.
// При сбое возвращает вход без изменений.
func (o *OpenAI) Dedupe(ctx context.Context, summaries []string) []string {
	if len(summaries) == 0 {
		return nil
	}

	combined := strings.Join(summaries, "\n\n")
	unique, err := o.complete(ctx,
		"Ты — помощник, который анализирует тексты и удаляет повторяющиеся мысли.",
		fmt.Sprintf("Проанализируй эти выжимки и оставь только уникальные мысли по темам из постов. "+
			"Слишком мощно тоже не убирай все, оставляй многое. "+
			"Ни в коем случае не добавляй разметку заголовков и подзаголовков:\n\n%s", combined),
		o.maxTokens)
	if err != nil {
		o.log.Error().Err(err).Msg("не удалось убрать дубликаты")
		return summaries
	}
	return strings.Split(unique, "\n\n")
}

// DescribeShort создаёт краткое описание канала по выборке постов.
func (o *OpenAI) DescribeShort(ctx context.Context, texts []string) string {
	content := joinTexts(texts)
	if content == "" {
		return domain.NoDescription
	}
	description, err := o.complete(ctx,
		"Ты — эксперт, который анализирует контент каналов и создает краткие описания.",
		fmt.Sprintf("Проанализируй контент этого канала и составь краткое описание его тематики. Описание должно быть коротким, максимум 2-3 предложения:\n\n%s", content),
		100)
	if err != nil {
		o.log.Error().Err(err).Msg("не удалось создать краткое описание")
		return domain.DescriptionUnavailable
	}
	return description
}

// DescribeDetailed создаёт подробное описание канала по выборке постов.
func (o *OpenAI) DescribeDetailed(ctx context.Context, texts []string) string {
	content := joinTexts(texts)
	if content == "" {
		return domain.NoDescription
	}
	description, err := o.complete(ctx,
		"Ты — эксперт, который анализирует контент каналов и создает подробные описания.",
		fmt.Sprintf("Проанализируй контент этого канала и создай подробное описание его тематики, основных тем и ключевых идей. Будь детальным, но не слишком строгим при описании границ тематики:\n\n%s", content),
		o.maxTokens)
	if err != nil {
		o.log.Error().Err(err).Msg("не удалось создать подробное описание")
		return domain.DescriptionUnavailable
	}
	return description
}

func joinTexts(texts []string) string {
	var nonEmpty []string
	for _, text := range texts {
		if strings.TrimSpace(text) != "" {
			nonEmpty = append(nonEmpty, text)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

// parseAffirmative детерминированно разбирает ответ бинарной проверки:
// обрезка, нижний регистр, срез хвостовой пунктуации, сравнение с «да».
func parseAffirmative(decision string) bool {
	decision = strings.ToLower(strings.TrimSpace(decision))
	decision = strings.TrimRight(decision, ".!,;: ")
	return decision == "да"
}
