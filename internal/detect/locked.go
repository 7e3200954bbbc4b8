package detect

import (
	"strings"

	"github.com/inboxops/autotag/internal/model"
)

// lockedMarker is the literal banner the CRM injects into a conversation
// when the counterparty's business account has been suspended.
const lockedMarker = "Business Account locked"

// AccountLocked reports whether the conversation shows the account-locked
// banner in any message, from either side.
func AccountLocked(messages []model.Message) bool {
	for _, m := range messages {
		if strings.Contains(m.Text, lockedMarker) {
			return true
		}
	}
	return false
}
