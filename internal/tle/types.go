package tle

import (
	"errors"
	"time"
)

// ErrIncomplete is returned when a response does not carry a full
// name/line1/line2 element set.
var ErrIncomplete = errors.New("incomplete element set")

// ElementSet is one satellite's orbital elements as published by the catalog:
// the name line and the two element lines, plus metadata derived from line 1.
// Values are immutable once fetched; a refresh replaces the whole set.
type ElementSet struct {
	Name  string
	Line1 string
	Line2 string

	NORADID   int
	Epoch     time.Time
	FetchedAt time.Time
}

// Complete reports whether all three lines are present. A failed fetch yields
// the zero ElementSet, which is never complete.
func (s ElementSet) Complete() bool {
	return s.Name != "" && s.Line1 != "" && s.Line2 != ""
}

// Age returns how long ago the set was fetched, relative to now.
func (s ElementSet) Age(now time.Time) time.Duration {
	if s.FetchedAt.IsZero() {
		return 0
	}
	return now.Sub(s.FetchedAt)
}

// Same reports whether two sets carry identical element lines.
func (s ElementSet) Same(o ElementSet) bool {
	return s.Line1 == o.Line1 && s.Line2 == o.Line2 && s.Name == o.Name
}
