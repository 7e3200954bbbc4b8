// Package detect scans conversation text for operational markers: the
// settlement-confirmation message and the account-locked banner.
package detect

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/inboxops/autotag/internal/model"
)

// settlementPhrase is the obfuscated confirmation sentence the operator
// sends when a settlement is being processed, already in normalized form.
const settlementPhrase = "segui los pasos a continuacion para que tu acr3dit4ci0n se procese sin demoras"

// foldAccents decomposes characters and drops combining marks, turning
// "acreditación" into "acreditacion".
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases text, folds accented characters, strips the
// punctuation the CRM decorates messages with, and collapses whitespace.
func Normalize(s string) string {
	folded, _, err := transform.String(foldAccents, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		switch {
		case strings.ContainsRune(".,!?¿¡", r):
			// dropped
		case unicode.IsSpace(r):
			space = true
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Settled reports whether any operator message contains the settlement
// confirmation phrase. Counterparty messages are never scanned, and no
// timestamp filter applies: confirmations without a visible timestamp
// must still count.
func Settled(messages []model.Message) bool {
	for _, m := range messages {
		if m.Author != model.RoleOperator {
			continue
		}
		if strings.Contains(Normalize(m.Text), settlementPhrase) {
			return true
		}
	}
	return false
}
