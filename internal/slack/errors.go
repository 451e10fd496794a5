package slack

import "fmt"

// Error is returned when Slack rejects a message.
type Error struct {
	Op     string // "chat.postMessage" or "webhook"
	Status int    // HTTP status for transport-level rejections
	Code   string // Slack error code when the API answered ok:false
	Body   string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("slack %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("slack %s: status %d: %s", e.Op, e.Status, e.Body)
}
