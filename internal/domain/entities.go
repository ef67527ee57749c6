package domain

import "time"

// Channel описывает отслеживаемый пользователем канал-источник.
// IsNew выставлен до первого прогона конвейера допуска и сбрасывается
// ровно один раз.
type Channel struct {
	ID        int64
	UserID    int64
	Username  string
	IsNew     bool
	CreatedAt time.Time
}

// Post представляет допущенный (сохранённый) пост источника.
// PostID — натуральный идентификатор из выдачи фетчера, уникальный в
// рамках пользователя. PostNumber — сквозной монотонный номер поста
// пользователя, присваивается при допуске.
type Post struct {
	ID              int64
	UserID          int64
	ChannelUsername string
	PostID          string
	Content         string
	Summary         string
	PostNumber      int64
	IsRead          bool
	CreatedAt       time.Time
}

// FetchedPost — сырой пост из выдачи фетчера до допуска.
type FetchedPost struct {
	ID   string
	Text string
}

// ChannelDescription хранит краткое и подробное описания канала.
// Краткое показывается в списке каналов, подробное служит контекстом
// для проверок релевантности и выжимок.
type ChannelDescription struct {
	UserID   int64
	Username string
	Short    string
	Detailed string
}
