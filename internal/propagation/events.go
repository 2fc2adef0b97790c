package propagation

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const (
	coarseStep      = 30 * time.Second // altitude sampling interval
	eventResolution = time.Second      // precision of refined event times
	ctxCheckEvery   = 256              // samples between cancellation checks
)

// altitudeFunc returns the observer-relative altitude in degrees at t.
type altitudeFunc func(t time.Time) (float64, error)

// findEvents scans [start, end) at coarseStep, plus one last sample a second
// before end, and refines every threshold crossing (rise/set) and every local
// altitude maximum above the threshold (culminate) to one-second resolution.
// A pass that peaks above the threshold between two samples that both read
// below it still yields a full rise, culminate, set triple.
//
// A window opening mid-pass yields no rise for that pass; a window closing
// mid-pass yields a rise (and possibly a culmination) with no set.
func findEvents(ctx context.Context, altitude altitudeFunc, start, end time.Time, minAlt float64) ([]Event, error) {
	events := []Event{}
	start = start.UTC().Truncate(eventResolution)
	end = end.UTC()
	if !end.After(start) {
		return events, nil
	}

	var (
		times []time.Time
		alts  []float64
	)
	sample := func(t time.Time) error {
		a, err := altitude(t)
		if err != nil {
			return fmt.Errorf("altitude at %s: %w", t.Format(time.RFC3339), err)
		}
		times = append(times, t)
		alts = append(alts, a)
		return nil
	}
	for t := start; t.Before(end); t = t.Add(coarseStep) {
		if len(times)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := sample(t); err != nil {
			return nil, err
		}
	}
	if last := end.Add(-eventResolution).Truncate(eventResolution); last.After(times[len(times)-1]) {
		if err := sample(last); err != nil {
			return nil, err
		}
	}

	for i := 1; i < len(times); i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		prevAbove := alts[i-1] >= minAlt
		curAbove := alts[i] >= minAlt

		switch {
		case !prevAbove && curAbove:
			t, err := bisectCrossing(altitude, times[i-1], times[i], minAlt, true)
			if err != nil {
				return nil, err
			}
			events = append(events, Event{Time: t, Kind: Rise})
		case prevAbove && !curAbove:
			t, err := bisectCrossing(altitude, times[i-1], times[i], minAlt, false)
			if err != nil {
				return nil, err
			}
			events = append(events, Event{Time: t, Kind: Set})
		}

		if i+1 < len(times) && alts[i] > alts[i-1] && alts[i] >= alts[i+1] {
			t, peak, err := refineMaximum(altitude, times[i-1], times[i+1])
			if err != nil {
				return nil, err
			}
			if peak < minAlt {
				continue
			}
			events = append(events, Event{Time: t, Kind: Culminate})

			// Grazing pass: every sample in the bracket is below the
			// threshold, so no crossing was seen above.
			if alts[i] < minAlt {
				rise, err := bisectCrossing(altitude, times[i-1], t, minAlt, true)
				if err != nil {
					return nil, err
				}
				set, err := bisectCrossing(altitude, t, times[i+1], minAlt, false)
				if err != nil {
					return nil, err
				}
				events = append(events, Event{Time: rise, Kind: Rise}, Event{Time: set, Kind: Set})
			}
		}
	}

	sort.SliceStable(events, func(a, b int) bool {
		if events[a].Time.Equal(events[b].Time) {
			return events[a].Kind < events[b].Kind
		}
		return events[a].Time.Before(events[b].Time)
	})
	return events, nil
}

// bisectCrossing narrows [lo, hi] to the first second on the far side of the
// threshold. rising selects which side lo is on.
func bisectCrossing(altitude altitudeFunc, lo, hi time.Time, minAlt float64, rising bool) (time.Time, error) {
	for hi.Sub(lo) > eventResolution {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(eventResolution)
		if !mid.After(lo) {
			mid = lo.Add(eventResolution)
		}
		a, err := altitude(mid)
		if err != nil {
			return time.Time{}, err
		}
		if (a >= minAlt) == rising {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// refineMaximum finds the second of greatest altitude in [lo, hi] by ternary
// search, assuming a single peak in the bracket.
func refineMaximum(altitude altitudeFunc, lo, hi time.Time) (time.Time, float64, error) {
	l, h := int64(0), int64(hi.Sub(lo)/eventResolution)
	at := func(k int64) (float64, error) {
		return altitude(lo.Add(time.Duration(k) * eventResolution))
	}

	for h-l > 2 {
		m1 := l + (h-l)/3
		m2 := h - (h-l)/3
		a1, err := at(m1)
		if err != nil {
			return time.Time{}, 0, err
		}
		a2, err := at(m2)
		if err != nil {
			return time.Time{}, 0, err
		}
		if a1 < a2 {
			l = m1 + 1
		} else {
			h = m2
		}
	}

	best, bestAlt := l, -1e9
	for k := l; k <= h; k++ {
		a, err := at(k)
		if err != nil {
			return time.Time{}, 0, err
		}
		if a > bestAlt {
			best, bestAlt = k, a
		}
	}
	return lo.Add(time.Duration(best) * eventResolution), bestAlt, nil
}
