package domain

// Медиа-плейсхолдеры фетчера. Такой текст сохраняется в summary дословно,
// без обращения к оракулу.
const (
	PlaceholderPhoto    = "[Картинка]"
	PlaceholderVideo    = "[Видео]"
	PlaceholderGIF      = "[GIF]"
	PlaceholderDocument = "[Файл]"
	PlaceholderMedia    = "[Медиа]"
)

var mediaPlaceholders = map[string]struct{}{
	PlaceholderPhoto:    {},
	PlaceholderVideo:    {},
	PlaceholderGIF:      {},
	PlaceholderDocument: {},
	PlaceholderMedia:    {},
}

// IsMediaPlaceholder сообщает, является ли текст поста плейсхолдером медиа.
func IsMediaPlaceholder(text string) bool {
	_, ok := mediaPlaceholders[text]
	return ok
}

// SummaryUnavailable — зарезервированный маркер выжимки при сбое оракула.
const SummaryUnavailable = "Не удалось сгенерировать выжимку."

// DescriptionUnavailable — маркер описания канала при сбое оракула.
const DescriptionUnavailable = "Не удалось создать описание канала."

// NoDescription подставляется как контекст, если описание канала не сохранено.
const NoDescription = "Канал без описания."

// DigestEmpty возвращается, когда непрочитанных постов нет вовсе.
const DigestEmpty = "Нет новых постов для дайджеста."

// DigestNothingUseful возвращается, когда все непрочитанные посты
// отфильтрованы как мусор.
const DigestNothingUseful = "Нет полезных постов для дайджеста."
