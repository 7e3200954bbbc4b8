package nomenclature

import "strings"

// Merge folds newly derived codes into an existing comma-separated
// annotation text. The result is idempotent and settlement markers are
// monotonic: once an entry carries "!", no automated merge removes it.
//
// Matching is keyed by the code text stripped of the settlement marker.
// A lettered code additionally upgrades an existing letterless entry
// with the same base (the letter resolved after the base was first
// tagged). Returns changed=false, and the input text untouched, when no
// code produced a mutation.
func Merge(existing string, codes []Code) (string, bool) {
	entries := splitCodes(existing)
	changed := false

	for _, code := range codes {
		key := code.Key()
		idx := indexByKey(entries, key)

		if idx == -1 && code.Letter != "" {
			// Letterless entry with the same base upgrades to the
			// lettered version.
			idx = indexByKey(entries, code.Base)
			if idx != -1 {
				upgraded := code
				upgraded.Settled = code.Settled || strings.HasSuffix(entries[idx], "!")
				if entries[idx] != upgraded.Render() {
					entries[idx] = upgraded.Render()
					changed = true
				}
				continue
			}
		}

		if idx == -1 {
			entries = append(entries, code.Render())
			changed = true
			continue
		}

		current := entries[idx]
		if current == code.Render() {
			continue
		}
		// Same key, different marker. Upgrade only; never clear.
		if code.Settled && !strings.HasSuffix(current, "!") {
			entries[idx] = code.Render()
			changed = true
		}
	}

	if !changed {
		return existing, false
	}
	return strings.Join(entries, ", "), true
}

func splitCodes(text string) []string {
	parts := strings.Split(text, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func indexByKey(entries []string, key string) int {
	for i, e := range entries {
		if StripMarker(e) == key {
			return i
		}
	}
	return -1
}
