package digest

import "testing"

func TestPostLinkStripsChannelPrefix(t *testing.T) {
	link := PostLink("news", "news/123")
	if link != "https://t.me/news/123" {
		t.Fatalf("неожиданная ссылка: %q", link)
	}
}

func TestPostLinkBareID(t *testing.T) {
	link := PostLink("news", "123")
	if link != "https://t.me/news/123" {
		t.Fatalf("неожиданная ссылка: %q", link)
	}
}

func TestRenderSingleSection(t *testing.T) {
	text := Render([]Section{{
		Channel: "news",
		Entries: []Entry{
			{Summary: "первая выжимка", Link: "https://t.me/news/1"},
			{Summary: "вторая выжимка", Link: "https://t.me/news/2"},
		},
	}})

	want := "Канал: @news\n\n" +
		"первая выжимка\n [Ссылка](https://t.me/news/1)\n\n" +
		"вторая выжимка\n [Ссылка](https://t.me/news/2)"
	if text != want {
		t.Fatalf("неожиданный текст раздела:\n%q\nожидалось:\n%q", text, want)
	}
}

func TestRenderJoinsSectionsWithBlankLine(t *testing.T) {
	text := Render([]Section{
		{Channel: "a", Entries: []Entry{{Summary: "s1", Link: "l1"}}},
		{Channel: "b", Entries: []Entry{{Summary: "s2", Link: "l2"}}},
	})

	want := "Канал: @a\n\ns1\n [Ссылка](l1)\n\nКанал: @b\n\ns2\n [Ссылка](l2)"
	if text != want {
		t.Fatalf("неожиданный дайджест:\n%q", text)
	}
}
