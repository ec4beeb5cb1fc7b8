package domain

import "github.com/jonboulle/clockwork"

// clock stamps ProcessedAt during enrichment. Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock replaces the enrichment time source. Passing nil restores the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
}
