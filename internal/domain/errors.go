package domain

import "errors"

// Ошибки уровня домена. Адаптеры обязаны маппить свои ошибки на эти
// сентинелы, чтобы usecase-слой не зависел от конкретного хранилища.
var (
	// ErrSourceExists — канал уже отслеживается этим пользователем.
	ErrSourceExists = errors.New("source already exists")

	// ErrSourceNotFound — канал не найден среди источников пользователя.
	ErrSourceNotFound = errors.New("source not found")

	// ErrNoSources — у пользователя нет ни одного источника.
	ErrNoSources = errors.New("no sources")

	// ErrTrackingActive — операция запрещена при включённом отслеживании.
	ErrTrackingActive = errors.New("tracking is active")

	// ErrTrackingInactive — отслеживание и так выключено.
	ErrTrackingInactive = errors.New("tracking is not active")

	// ErrPostNotFound — пост не найден в хранилище пользователя.
	ErrPostNotFound = errors.New("post not found")
)
