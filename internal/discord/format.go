package discord

import (
	"fmt"
	"strings"

	"github.com/kyralis/chatrelay-go/internal/relay"
)

// maxBodyLength keeps the rendered message comfortably inside Discord's
// 2000-character content limit after the timestamp and sender are added.
const maxBodyLength = 1800

// FormatEvent renders a chat event as Discord message content:
// "HH:MM [**sender**]: `body`". Backticks are replaced so the body cannot
// break out of its code span, and overlong bodies are truncated.
func FormatEvent(ev relay.Event) string {
	sender := strings.ReplaceAll(ev.Sender, "`", "'")
	body := strings.ReplaceAll(ev.Body, "`", "'")
	if len(body) > maxBodyLength {
		body = body[:maxBodyLength-1] + "..."
	}
	return fmt.Sprintf("%s [**%s**]: `%s`", ev.ReceivedAt.Format("15:04"), sender, body)
}
