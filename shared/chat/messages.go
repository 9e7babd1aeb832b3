package chat

import "fmt"

const excerptLimit = 120

// WarningText formats an immediate negative-emotion warning with enough
// context for a responder: the user, the channel and an excerpt of the
// triggering message.
func WarningText(userID, channelID, text string, intensity float64) string {
	return fmt.Sprintf(
		":warning:<@%s>:warning:\nA message in <#%s> scored a negative intensity of %.2f.\n>%s",
		userID, channelID, intensity, Excerpt(text),
	)
}

// DigestHeaderText formats the daily thread parent.
func DigestHeaderText(date string) string {
	return fmt.Sprintf(
		":star::star: *%s* :star::star:\nCheck out how you did yesterday and start your day off with AI recommended song!",
		date,
	)
}

// Excerpt truncates message text for inclusion in a notification.
func Excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLimit {
		return text
	}
	return string(runes[:excerptLimit]) + "…"
}
