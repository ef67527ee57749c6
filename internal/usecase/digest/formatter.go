package digest

import (
	"fmt"
	"strings"
)

// Section — раздел дайджеста по одному каналу.
type Section struct {
	Channel string
	Entries []Entry
}

// Entry — одна запись дайджеста: выжимка и глубокая ссылка на пост.
type Entry struct {
	Summary string
	Link    string
}

// PostLink строит глубокую ссылку на пост публичного канала.
func PostLink(username, postID string) string {
	// data-post приходит в виде "<username>/<id>"; берём только номер.
	if idx := strings.LastIndex(postID, "/"); idx >= 0 {
		postID = postID[idx+1:]
	}
	return fmt.Sprintf("https://t.me/%s/%s", username, postID)
}

// Render собирает текст дайджеста из разделов.
func Render(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, section := range sections {
		lines := make([]string, 0, len(section.Entries))
		for _, entry := range section.Entries {
			lines = append(lines, fmt.Sprintf("%s\n [Ссылка](%s)", entry.Summary, entry.Link))
		}
		parts = append(parts, fmt.Sprintf("Канал: @%s\n\n%s", section.Channel, strings.Join(lines, "\n\n")))
	}
	return strings.Join(parts, "\n\n")
}
