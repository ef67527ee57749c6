package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-channel-digest/internal/adapters/telegram"
	"tg-channel-digest/internal/domain"
	"tg-channel-digest/internal/infra/metrics"
	"tg-channel-digest/internal/usecase/sources"
	"tg-channel-digest/internal/usecase/watch"
)

// Handler обслуживает вебхук бота.
type Handler struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	sourcesUC  *sources.Service
	watchUC    *watch.Service
	posts      domain.PostRepo
	jobs       domain.DigestQueue
	mu         sync.Mutex
	pendingAdd map[int64]struct{}
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, sourcesUC *sources.Service, watchUC *watch.Service, posts domain.PostRepo, jobs domain.DigestQueue) *Handler {
	return &Handler{
		bot:        bot,
		log:        log,
		sourcesUC:  sourcesUC,
		watchUC:    watchUC,
		posts:      posts,
		jobs:       jobs,
		pendingAdd: make(map[int64]struct{}),
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя", nil)
		return
	}
	text := strings.TrimSpace(msg.Text)
	userID := msg.From.ID

	if !strings.HasPrefix(text, "/") && h.tryHandleAddInput(ctx, msg.Chat.ID, userID, text) {
		return
	}

	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(msg.Chat.ID)
	case text == "Включить бота", strings.HasPrefix(text, "/on"):
		h.handleActivate(ctx, msg.Chat.ID, userID)
	case text == "Отключить бота", strings.HasPrefix(text, "/off"):
		h.handleDeactivate(ctx, msg.Chat.ID, userID)
	case text == "Добавить канал", strings.HasPrefix(text, "/add"):
		alias := strings.TrimSpace(strings.TrimPrefix(text, "/add"))
		h.handleAdd(ctx, msg.Chat.ID, userID, alias)
	case text == "Удалить канал", strings.HasPrefix(text, "/remove"):
		h.handleRemoveMenu(ctx, msg.Chat.ID, userID)
	case text == "Список каналов", strings.HasPrefix(text, "/list"):
		h.handleList(ctx, msg.Chat.ID, userID)
	case text == "Новые посты", strings.HasPrefix(text, "/new"):
		h.handleNewPosts(ctx, msg.Chat.ID, userID)
	case text == "Дайджест", strings.HasPrefix(text, "/digest"):
		h.handleDigest(ctx, msg.Chat.ID, userID)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте меню под сообщением.", h.mainKeyboard())
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID
	data := cb.Data

	switch {
	case data == "activate":
		h.handleActivate(ctx, chatID, userID)
	case data == "deactivate":
		h.handleDeactivate(ctx, chatID, userID)
	case data == "add_channel":
		h.handleAdd(ctx, chatID, userID, "")
	case data == "remove_menu":
		h.handleRemoveMenu(ctx, chatID, userID)
	case data == "list_channels":
		h.handleList(ctx, chatID, userID)
	case data == "new_posts":
		h.handleNewPosts(ctx, chatID, userID)
	case data == "digest_now":
		h.handleDigest(ctx, chatID, userID)
	case strings.HasPrefix(data, "remove:"):
		h.handleRemove(ctx, chatID, userID, strings.TrimPrefix(data, "remove:"))
	}

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := h.bot.Request(callback); err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) handleStart(chatID int64) {
	lines := []string{
		"👋 Добро пожаловать!",
		"",
		"Как пользоваться ботом:",
		"1. Добавьте каналы, которые хотите отслеживать.",
		"2. Нажмите кнопку \"Включить бота\", чтобы начать получать выжимки постов.",
		"",
		"Сейчас можете добавить каналы, которые хотите отслеживать.",
	}
	h.reply(chatID, strings.Join(lines, "\n"), h.mainKeyboard())
}

func (h *Handler) handleActivate(ctx context.Context, chatID, userID int64) {
	if err := h.sourcesUC.Activate(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNoSources) {
			h.reply(chatID, "Вы не добавили ни одного канала. Сначала добавьте каналы, чтобы начать отслеживание.", h.mainKeyboard())
			return
		}
		h.reply(chatID, fmt.Sprintf("Не удалось включить отслеживание: %v", err), nil)
		return
	}

	h.reply(chatID, "Идет изучение постов. Подождите...", nil)
	h.watchUC.Start(userID)

	h.reply(chatID, "Отслеживание постов активировано!\nТеперь можно составлять дайджест или смотреть новые посты.", h.mainKeyboard())
}

func (h *Handler) handleDeactivate(ctx context.Context, chatID, userID int64) {
	if err := h.sourcesUC.Deactivate(ctx, userID); err != nil {
		h.reply(chatID, fmt.Sprintf("Не удалось отключить отслеживание: %v", err), nil)
		return
	}
	h.watchUC.Stop(userID)
	h.reply(chatID, "Отслеживание постов деактивировано. Теперь вы можете изменять список каналов.", h.mainKeyboard())
}

func (h *Handler) handleAdd(ctx context.Context, chatID, userID int64, alias string) {
	active, err := h.sourcesUC.IsActive(ctx, userID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err), nil)
		return
	}
	if active {
		h.reply(chatID, "❌ Отслеживание активно. Сначала отключите бота, чтобы изменить список каналов.", h.mainKeyboard())
		return
	}

	if alias == "" {
		h.mu.Lock()
		h.pendingAdd[userID] = struct{}{}
		h.mu.Unlock()
		h.reply(chatID, "Введите название канала (например, @channel_name):", nil)
		return
	}
	h.addChannel(ctx, chatID, userID, alias)
}

// tryHandleAddInput завершает сценарий добавления канала, если для
// пользователя ожидается ввод названия.
func (h *Handler) tryHandleAddInput(ctx context.Context, chatID, userID int64, text string) bool {
	h.mu.Lock()
	_, ok := h.pendingAdd[userID]
	if ok {
		delete(h.pendingAdd, userID)
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.addChannel(ctx, chatID, userID, text)
	return true
}

func (h *Handler) addChannel(ctx context.Context, chatID, userID int64, alias string) {
	h.reply(chatID, "Идет изучение контента канала... Подождите.", nil)

	info, err := h.sourcesUC.Add(ctx, userID, alias)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTrackingActive):
			h.reply(chatID, "❌ Отслеживание активно. Сначала отключите бота, чтобы изменить список каналов.", h.mainKeyboard())
		case errors.Is(err, domain.ErrSourceExists):
			h.reply(chatID, "Этот канал уже есть в списке отслеживаемых.", h.mainKeyboard())
		default:
			h.reply(chatID, fmt.Sprintf("Ошибка при добавлении канала: %v", err), nil)
		}
		return
	}
	h.reply(chatID, fmt.Sprintf("Канал @%s добавлен в список отслеживаемых.\n\nКраткое описание: %s", info.Channel.Username, info.Description), h.mainKeyboard())
}

func (h *Handler) handleRemoveMenu(ctx context.Context, chatID, userID int64) {
	active, err := h.sourcesUC.IsActive(ctx, userID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err), nil)
		return
	}
	if active {
		h.reply(chatID, "❌ Отслеживание активно. Сначала отключите бота, чтобы изменить список каналов.", h.mainKeyboard())
		return
	}

	list, err := h.sourcesUC.List(ctx, userID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err), nil)
		return
	}
	if len(list) == 0 {
		h.reply(chatID, "Вы не отслеживаете ни один канал.", h.mainKeyboard())
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(list))
	for _, info := range list {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("@"+info.Channel.Username, "remove:"+info.Channel.Username),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.reply(chatID, "Выберите канал для удаления:", &markup)
}

func (h *Handler) handleRemove(ctx context.Context, chatID, userID int64, username string) {
	if err := h.sourcesUC.Remove(ctx, userID, username); err != nil {
		switch {
		case errors.Is(err, domain.ErrTrackingActive):
			h.reply(chatID, "❌ Отслеживание активно. Сначала отключите бота, чтобы изменить список каналов.", h.mainKeyboard())
		case errors.Is(err, domain.ErrSourceNotFound):
			h.reply(chatID, "Канал не найден среди отслеживаемых.", h.mainKeyboard())
		default:
			h.reply(chatID, fmt.Sprintf("Ошибка при удалении канала: %v", err), nil)
		}
		return
	}
	h.reply(chatID, fmt.Sprintf("Канал @%s удален из списка отслеживаемых.", username), h.mainKeyboard())
}

func (h *Handler) handleList(ctx context.Context, chatID, userID int64) {
	list, err := h.sourcesUC.List(ctx, userID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err), nil)
		return
	}
	if len(list) == 0 {
		h.reply(chatID, "Вы не отслеживаете ни один канал.", h.mainKeyboard())
		return
	}

	lines := make([]string, 0, len(list))
	for _, info := range list {
		description := info.Description
		if description == "" {
			description = "Описание отсутствует"
		}
		lines = append(lines, fmt.Sprintf("• @%s: %s", info.Channel.Username, description))
	}
	h.reply(chatID, strings.Join(lines, "\n"), h.mainKeyboard())
}

// handleNewPosts отправляет непрочитанные посты по одному, помечая каждый
// прочитанным сразу после отправки. Выжимка берётся допускная, включая
// деградированный маркер.
func (h *Handler) handleNewPosts(ctx context.Context, chatID, userID int64) {
	active, err := h.sourcesUC.IsActive(ctx, userID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err), nil)
		return
	}
	if !active {
		h.reply(chatID, "❌ Отслеживание не активировано. Сначала включите бота, чтобы получать новые посты.", h.mainKeyboard())
		return
	}

	unread, err := h.posts.ListUnread(ctx, userID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err), nil)
		return
	}
	if len(unread) == 0 {
		h.reply(chatID, "Новых постов нет.", h.mainKeyboard())
		return
	}

	for _, post := range unread {
		h.reply(chatID, fmt.Sprintf("📄 Новый пост из @%s:\n\n%s", post.ChannelUsername, post.Summary), nil)
		if err := h.posts.MarkRead(ctx, userID, post.ID); err != nil {
			h.log.Error().Err(err).Int64("post", post.ID).Msg("не удалось пометить пост прочитанным")
		}
	}
}

func (h *Handler) handleDigest(ctx context.Context, chatID, userID int64) {
	active, err := h.sourcesUC.IsActive(ctx, userID)
	if err != nil {
		h.reply(chatID, fmt.Sprintf("Ошибка: %v", err), nil)
		return
	}
	if !active {
		h.reply(chatID, "❌ Отслеживание не активировано. Сначала включите бота, чтобы получать дайджест.", h.mainKeyboard())
		return
	}

	job := domain.DigestJob{
		ID:         uuid.NewString(),
		UserID:     userID,
		ChatID:     chatID,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Int64("user", userID).Msg("не удалось поставить задачу дайджеста")
		h.reply(chatID, "Не удалось поставить дайджест в очередь, попробуйте позже", nil)
		return
	}
	h.reply(chatID, "Генерируется дайджест...", nil)
}

// NotifyNewPosts реализует domain.Notifier: выжимки цикла опроса
// отправляются пользователю по одной.
func (h *Handler) NotifyNewPosts(_ context.Context, userID int64, summaries []string) {
	for _, summary := range summaries {
		h.reply(userID, summary, nil)
	}
}

// SendDigest доставляет готовый дайджест, разбивая его под лимит Telegram.
func (h *Handler) SendDigest(chatID int64, text string) {
	parts := telegram.SplitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_digest", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить дайджест")
			return
		}
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) mainKeyboard() *tgbotapi.InlineKeyboardMarkup {
	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Включить бота", "activate"),
			tgbotapi.NewInlineKeyboardButtonData("⛔ Отключить бота", "deactivate"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Добавить канал", "add_channel"),
			tgbotapi.NewInlineKeyboardButtonData("➖ Удалить канал", "remove_menu"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📚 Список каналов", "list_channels"),
			tgbotapi.NewInlineKeyboardButtonData("📄 Новые посты", "new_posts"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📰 Дайджест", "digest_now"),
		),
	)
	return &buttons
}
