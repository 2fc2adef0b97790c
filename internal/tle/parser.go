package tle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// splitLines splits a catalog body into lines. The catalog terminates lines
// with CRLF; bare LF is accepted when CRLF yields fewer than three lines.
func splitLines(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	lines := strings.Split(body, "\r\n")
	if len(lines) < 3 {
		lines = strings.Split(body, "\n")
		for i := range lines {
			lines[i] = strings.TrimRight(lines[i], "\r")
		}
	}
	return lines
}

// Parse builds an ElementSet from the first three lines of a catalog
// response. The lines are kept verbatim; NORAD ID and epoch are extracted
// from line 1.
func Parse(body string) (ElementSet, error) {
	lines := splitLines(body)
	if len(lines) < 3 {
		return ElementSet{}, fmt.Errorf("%w: got %d lines, want 3", ErrIncomplete, len(lines))
	}

	name, line1, line2 := lines[0], lines[1], lines[2]
	if strings.TrimSpace(name) == "" {
		return ElementSet{}, fmt.Errorf("%w: empty name line", ErrIncomplete)
	}
	if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return ElementSet{}, fmt.Errorf("malformed element lines for %q", strings.TrimSpace(name))
	}
	if len(line1) < 32 {
		return ElementSet{}, fmt.Errorf("line 1 too short for %q: %d columns", strings.TrimSpace(name), len(line1))
	}

	// NORAD catalog number: columns 3-7.
	noradStr := strings.TrimSpace(line1[2:7])
	noradID, err := strconv.Atoi(noradStr)
	if err != nil {
		return ElementSet{}, fmt.Errorf("invalid NORAD ID %q: %w", noradStr, err)
	}

	// Epoch: columns 19-32.
	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return ElementSet{}, err
	}

	return ElementSet{
		Name:    name,
		Line1:   line1,
		Line2:   line2,
		NORADID: noradID,
		Epoch:   epoch,
	}, nil
}

// parseEpoch converts a YYDDD.DDDDDDDD epoch to UTC.
// Years 57-99 map to the 1900s, 00-56 to the 2000s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	day, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %v out of range", day)
	}

	// Day 1 is January 1st.
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}
