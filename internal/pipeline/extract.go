package pipeline

import (
	"strings"
	"time"

	"github.com/inboxops/autotag/internal/detect"
	"github.com/inboxops/autotag/internal/inbox"
	"github.com/inboxops/autotag/internal/model"
)

// extraction is the read-only digest of one conversation: everything the
// tagging decision needs, computed in a single pass over the messages.
type extraction struct {
	referrals []model.ReferralEvent
	firstMsg  model.TimeInfo
	settled   bool
	locked    bool
}

// isReferralURL recognizes the two inbound referral link shapes the
// campaigns use.
func isReferralURL(url string) bool {
	return strings.HasPrefix(url, "https://fb.me") ||
		strings.Contains(url, "instagram.com/p/")
}

// extract digests a conversation. Only referral links whose message
// carries a parseable time label count as events; qualifying links are
// de-duplicated by URL, keeping the first occurrence's timestamp.
func extract(conv model.Conversation, loc *time.Location) extraction {
	ex := extraction{
		settled: detect.Settled(conv.Messages),
		locked:  detect.AccountLocked(conv.Messages),
	}
	if len(conv.Messages) > 0 {
		ex.firstMsg = inbox.ParseTimeLabel(conv.Messages[0].TimeLabel, loc)
	}

	seen := make(map[string]bool)
	for _, m := range conv.Messages {
		if len(m.Links) == 0 {
			continue
		}
		observed := inbox.ParseTimeLabel(m.TimeLabel, loc)
		if !observed.Parseable() {
			continue
		}
		for _, link := range m.Links {
			if !isReferralURL(link) || seen[link] {
				continue
			}
			seen[link] = true
			ex.referrals = append(ex.referrals, model.ReferralEvent{
				URL:      link,
				Observed: observed,
			})
		}
	}
	return ex
}
