// Package nomenclature derives and merges conversation tracking codes.
//
// A code has the shape DD-MM-<panelID><letter?><!?>: the civil date in a
// fixed timezone, the numeric panel id (0 when the panel could not be
// resolved), an optional campaign letter, and a trailing "!" marking a
// settled conversation.
package nomenclature

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultTimezone is the civil calendar used for code dates when no
// override is configured.
const DefaultTimezone = "America/Argentina/Buenos_Aires"

// Code is one derived tracking code before rendering.
type Code struct {
	// Base is the DD-MM-id prefix.
	Base string
	// Letter is the optional single uppercase campaign letter.
	Letter string
	// Settled marks the settlement-confirmed conversation; rendered as
	// a trailing "!".
	Settled bool
}

// Render produces the final code string.
func (c Code) Render() string {
	var b strings.Builder
	b.WriteString(c.Base)
	b.WriteString(c.Letter)
	if c.Settled {
		b.WriteString("!")
	}
	return b.String()
}

// Key is the identity of a code for merge purposes: the rendered string
// without the settlement marker.
func (c Code) Key() string {
	return c.Base + c.Letter
}

// StripMarker removes a trailing settlement marker from a rendered code.
func StripMarker(code string) string {
	return strings.TrimSuffix(code, "!")
}

// Builder derives base codes in a fixed civil timezone so results are
// stable across machines.
type Builder struct {
	loc *time.Location
}

// NewBuilder loads the given IANA timezone; empty means DefaultTimezone.
func NewBuilder(tz string) (*Builder, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, eris.Wrapf(err, "nomenclature: load timezone %s", tz)
	}
	return &Builder{loc: loc}, nil
}

// Location returns the builder's civil timezone.
func (b *Builder) Location() *time.Location {
	return b.loc
}

// Base derives the DD-MM-id prefix for the given panel id at the given
// instant. Callers pass id 0 when panel resolution failed.
func (b *Builder) Base(panelID int, now time.Time) string {
	local := now.In(b.loc)
	return fmt.Sprintf("%02d-%02d-%d", local.Day(), int(local.Month()), panelID)
}
