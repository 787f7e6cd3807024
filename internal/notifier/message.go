package notifier

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pennylane/pkg/tgui"
)

const (
	CallbackPlugin = "pennylane"
	ActionDonate   = "donate"

	unnamedGroup  = "Unnamed Group"
	maxTitleRunes = 128
)

// Group is the chat being announced. It lives only for one announcement.
type Group struct {
	ID    int64
	Title string
}

// Text renders the announcement body in legacy Markdown.
func Text(g Group, ttl time.Duration) string {
	title := strings.TrimSpace(g.Title)
	if title == "" {
		title = unnamedGroup
	}
	return tgui.NewText().
		Line("🎵 New group detected!").
		Blank().
		Raw("📝 Title: " + tgui.EscMarkdown(tgui.TruncRunes(title, maxTitleRunes))).
		Raw("🆔 ID: " + tgui.Code(strconv.FormatInt(g.ID, 10))).
		Blank().
		Line("Copy the ID above (tap to select). This info will be forgotten in " + HumanTTL(ttl) + ".").
		String()
}

// HumanTTL renders ttl as "5 minutes", "1 minute" or "45 seconds".
func HumanTTL(ttl time.Duration) string {
	if ttl >= time.Minute && ttl%time.Minute == 0 {
		return plural(int(ttl/time.Minute), "minute")
	}
	if ttl >= time.Minute {
		return plural(int(ttl.Round(time.Minute)/time.Minute), "minute")
	}
	return plural(max(int(ttl/time.Second), 1), "second")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// DonateKeyboard is the "Support the music" button.
func DonateKeyboard() *tgui.Inline {
	return tgui.NewInline().Row(tgui.Btn("🎵 Support the music", tgui.Data(CallbackPlugin, ActionDonate, "")))
}
