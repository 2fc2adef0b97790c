package propagation

import (
	"context"
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)

const period = 90 * time.Minute

// sineAltitude peaks at 20° every period, a quarter period after t0.
func sineAltitude(t time.Time) (float64, error) {
	x := 2 * math.Pi * t.Sub(t0).Seconds() / period.Seconds()
	return 40*math.Sin(x) - 20, nil
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func equalKinds(a, b []EventKind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFindEventsFullPasses(t *testing.T) {
	events, err := findEvents(context.Background(), sineAltitude, t0, t0.Add(3*period), 10)
	if err != nil {
		t.Fatalf("findEvents: %v", err)
	}

	want := []EventKind{Rise, Culminate, Set, Rise, Culminate, Set, Rise, Culminate, Set}
	if !equalKinds(kinds(events), want) {
		t.Fatalf("kinds = %v, want %v", kinds(events), want)
	}

	// sin(x) = 0.75 at x = asin(0.75).
	riseOffset := time.Duration(math.Asin(0.75) / (2 * math.Pi) * period.Seconds() * float64(time.Second))
	for p := 0; p < 3; p++ {
		base := t0.Add(time.Duration(p) * period)
		checkNear(t, "rise", events[3*p].Time, base.Add(riseOffset))
		checkNear(t, "culminate", events[3*p+1].Time, base.Add(period/4))
		checkNear(t, "set", events[3*p+2].Time, base.Add(period/2-riseOffset))
	}
}

func checkNear(t *testing.T, label string, got, want time.Time) {
	t.Helper()
	if d := got.Sub(want); d > 2*time.Second || d < -2*time.Second {
		t.Errorf("%s at %s, want %s (off by %v)", label, got.Format(time.TimeOnly), want.Format(time.TimeOnly), d)
	}
}

// TestFindEventsStartsMidPass verifies a window opening during a pass has no leading rise.
func TestFindEventsStartsMidPass(t *testing.T) {
	start := t0.Add(20 * time.Minute)
	events, err := findEvents(context.Background(), sineAltitude, start, start.Add(period+20*time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []EventKind{Culminate, Set, Rise, Culminate, Set}
	if !equalKinds(kinds(events), want) {
		t.Errorf("kinds = %v, want %v", kinds(events), want)
	}
}

// TestFindEventsEndsMidPass verifies a window closing during a pass ends with a bare rise.
func TestFindEventsEndsMidPass(t *testing.T) {
	events, err := findEvents(context.Background(), sineAltitude, t0, t0.Add(15*time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if !equalKinds(kinds(events), []EventKind{Rise}) {
		t.Errorf("kinds = %v, want [rise]", kinds(events))
	}
}

// TestFindEventsBelowThreshold verifies low peaks produce no events at all.
func TestFindEventsBelowThreshold(t *testing.T) {
	events, err := findEvents(context.Background(), sineAltitude, t0, t0.Add(3*period), 25)
	if err != nil {
		t.Fatal(err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("events = %v, want empty non-nil", events)
	}
}

// grazingAltitude is a 10.5° pass peaking at t0+915s, between the samples at
// 900s and 930s that both read 8.25°, then two 50° passes an hour apart.
func grazingAltitude(t time.Time) (float64, error) {
	s := t.Sub(t0).Seconds()
	alt := -30.0
	alt = math.Max(alt, 10.5-0.01*(s-915)*(s-915))
	for _, c := range []float64{3600, 7200} {
		alt = math.Max(alt, 50-0.0002*(s-c)*(s-c))
	}
	return alt, nil
}

// TestFindEventsGrazingPass verifies a peak above the threshold that no coarse
// sample sees still yields a full triple and leaves later passes intact.
func TestFindEventsGrazingPass(t *testing.T) {
	events, err := findEvents(context.Background(), grazingAltitude, t0, t0.Add(3*time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []EventKind{Rise, Culminate, Set, Rise, Culminate, Set, Rise, Culminate, Set}
	if !equalKinds(kinds(events), want) {
		t.Fatalf("kinds = %v, want %v", kinds(events), want)
	}

	// 10.5 - 0.01*d² >= 10 for |d| <= 7.07s.
	checkNear(t, "grazing rise", events[0].Time, t0.Add(908*time.Second))
	checkNear(t, "grazing culminate", events[1].Time, t0.Add(915*time.Second))
	checkNear(t, "grazing set", events[2].Time, t0.Add(923*time.Second))
	checkNear(t, "second culminate", events[4].Time, t0.Add(time.Hour))
	checkNear(t, "third culminate", events[7].Time, t0.Add(2*time.Hour))
}

// TestFindEventsRiseInFinalSeconds verifies the scan reaches the last second
// of the window rather than stopping at the last 30 s sample.
func TestFindEventsRiseInFinalSeconds(t *testing.T) {
	ramp := func(t time.Time) (float64, error) {
		return t.Sub(t0).Seconds() - 100, nil
	}
	events, err := findEvents(context.Background(), ramp, t0, t0.Add(115*time.Second), 10)
	if err != nil {
		t.Fatal(err)
	}
	if !equalKinds(kinds(events), []EventKind{Rise}) {
		t.Fatalf("kinds = %v, want [rise]", kinds(events))
	}
	if want := t0.Add(110 * time.Second); !events[0].Time.Equal(want) {
		t.Errorf("rise at %s, want %s", events[0].Time.Format(time.TimeOnly), want.Format(time.TimeOnly))
	}
}

func TestFindEventsEmptyWindow(t *testing.T) {
	events, err := findEvents(context.Background(), sineAltitude, t0, t0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("events = %v, want empty non-nil", events)
	}
}

func TestFindEventsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := findEvents(ctx, sineAltitude, t0, t0.Add(5*24*time.Hour), 10)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestRefineMaximum(t *testing.T) {
	peak := t0.Add(period / 4)
	got, alt, err := refineMaximum(sineAltitude, peak.Add(-40*time.Second), peak.Add(20*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	checkNear(t, "peak", got, peak)
	if math.Abs(alt-20) > 0.01 {
		t.Errorf("peak altitude = %.3f, want 20", alt)
	}
}

func TestEventKindString(t *testing.T) {
	tests := map[EventKind]string{Rise: "rise", Culminate: "culminate", Set: "set", EventKind(7): "EventKind(7)"}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("EventKind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}
