package bandaid

import (
	"fmt"
	"strings"
	"time"

	"pennylane/internal/notifier"
	"pennylane/internal/relay"
	"pennylane/internal/storage"
	"pennylane/pkg/tgui"
)

const (
	textNotAdmin    = "Sorry, only group admins can use this command."
	textAlreadySent = "I already sent this group's ID recently. Check your private messages with me!"
	textNudge       = "Hey! Use /bandaid to get started, or /help for more info. 🎸"
)

func onboardingText(ttl time.Duration) string {
	return "🎸 Hey there! I'm Penny Lane, your group ID band aid.\n\n" +
		"Here's how this works:\n" +
		"1. Add me as an admin to any group you manage\n" +
		"2. Send /bandaid in that group\n" +
		"3. I'll privately message you the group's ID\n" +
		"4. I forget everything after " + notifier.HumanTTL(ttl) + " for your privacy!\n\n" +
		"Ready when you are! 🎵"
}

func sentText(n int) string {
	return fmt.Sprintf("✅ Group ID sent privately to %d registered admin(s)!", n)
}

func helpText(ttl time.Duration) string {
	return tgui.NewText().
		Raw("🎸 " + tgui.Bold("Penny Lane - Group ID Bot")).
		Blank().
		Line("I help you get Telegram group IDs safely and privately!").
		Blank().
		Raw(tgui.Bold("How to use:")).
		Line("1. Start me in a private chat with /bandaid").
		Line("2. Add me as admin to your group").
		Line("3. Send /bandaid in that group").
		Line("4. I'll DM you the group ID").
		Blank().
		Raw(tgui.Bold("Privacy:")+" "+tgui.EscMarkdown("I only keep info in memory for "+notifier.HumanTTL(ttl)+", then forget everything completely.")).
		Blank().
		Raw(tgui.Bold("Commands:")).
		Line("/bandaid - Register privately or get group ID").
		Line("/help - Show this help message").
		Line("/status - Show current memory usage").
		String()
}

func statusText(st relay.Status, totals *storage.Counters) string {
	t := tgui.NewText().
		Raw("🎵 " + tgui.Bold("Penny Lane Status")).
		Blank().
		Line(fmt.Sprintf("👥 Registered owners: %d", st.RecipientCount)).
		Line(fmt.Sprintf("📊 Active group cache: %d", st.CacheSize)).
		Line(fmt.Sprintf("⏱️ Cache TTL: %d seconds", int(st.TTL/time.Second)))
	if totals != nil {
		t.Line(fmt.Sprintf("📈 Lifetime: %d announcements, %d deliveries (%d failed), %d repeats suppressed",
			totals.Announcements, totals.Delivered, totals.Failed, totals.Suppressed))
	}
	return t.Blank().
		Line("All data is stored in RAM only and automatically expires!").
		String()
}

func donateText() string {
	return strings.Join([]string{
		"🎸 Thanks for supporting Penny Lane!",
		"",
		"To send Telegram Stars:",
		"1. Tap the attachment (📎) button below",
		"2. Select 'Payment'",
		"3. Choose 'Send Stars'",
		"4. Pick any amount you'd like",
		"",
		"Every star helps keep the music playing! 🎵",
	}, "\n")
}
