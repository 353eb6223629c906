package dashboard

import (
	"strings"

	"github.com/xinkaiwang/northpole/services/northpole/api"
)

const (
	santaGlyph = "🎅"
	deerGlyph  = "🦌"
	elfGlyph   = "🧝"
)

type Panel struct {
	Title  string
	Glyphs string
}

func repeat(glyph string, n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(glyph, n)
}

// Panels lays out the four boxes. Santa sits with whoever is working, or with the ready crowd when nobody is.
func Panels(status *api.StatusJson) []Panel {
	deer := status.PerClass["reindeer"]
	elves := status.PerClass["elves"]

	vacation := repeat(deerGlyph, deer.Vacationing) + repeat(elfGlyph, elves.Vacationing)
	ready := repeat(deerGlyph, deer.Ready) + repeat(elfGlyph, elves.Ready)
	making := repeat(elfGlyph, elves.Working)
	delivering := repeat(deerGlyph, deer.Working)

	switch {
	case delivering != "":
		delivering = santaGlyph + delivering
	case making != "":
		making = santaGlyph + making
	default:
		ready = santaGlyph + ready
	}
	return []Panel{
		{Title: "On vacation in Jamaica", Glyphs: vacation},
		{Title: "Ready to work", Glyphs: ready},
		{Title: "Making presents", Glyphs: making},
		{Title: "Delivering presents", Glyphs: delivering},
	}
}
