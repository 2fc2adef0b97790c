// Command isspass prints the ISS's current position and its visible passes
// over one location.
//
//	isspass -city London
//	isspass -lat 48.8566 -lon 2.3522 -hours 48
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/star/isstrack/internal/locations"
	"github.com/star/isstrack/internal/passes"
	"github.com/star/isstrack/internal/propagation"
	"github.com/star/isstrack/internal/tle"
	"github.com/star/isstrack/internal/tracker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	city       string
	lat, lon   float64
	coordSet   bool
	hours      int
	minElev    float64
	sourceURL  string
	timeout    time.Duration
	citiesFile string
	at         time.Time
	verbose    bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var (
		opts options
		at   string
	)
	fs := flag.NewFlagSet("isspass", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.city, "city", "", "city from the city table (default: first entry)")
	fs.Float64Var(&opts.lat, "lat", 0, "observer latitude in degrees, with -lon")
	fs.Float64Var(&opts.lon, "lon", 0, "observer longitude in degrees, with -lat")
	fs.IntVar(&opts.hours, "hours", int(passes.DefaultWindow.Hours()), "search window in hours")
	fs.Float64Var(&opts.minElev, "min-elevation", passes.DefaultMinAltitude, "minimum elevation in degrees")
	fs.StringVar(&opts.sourceURL, "url", tle.DefaultSourceURL, "TLE source URL")
	fs.DurationVar(&opts.timeout, "timeout", tle.DefaultTimeout, "TLE fetch timeout")
	fs.StringVar(&opts.citiesFile, "cities", "", "YAML city table (default: built-in)")
	fs.StringVar(&at, "at", "", "predict from this RFC 3339 instant instead of now")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging to stderr")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "lat" || f.Name == "lon" {
			opts.coordSet = true
		}
	})
	if opts.coordSet && opts.city != "" {
		return opts, errors.New("-city cannot be combined with -lat/-lon")
	}
	if opts.hours < 1 {
		return opts, errors.New("-hours must be at least 1")
	}
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return opts, fmt.Errorf("-at: %w", err)
		}
		opts.at = t.UTC()
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "isspass:", err)
		return 2
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cities, err := locations.Load(opts.citiesFile)
	if err != nil {
		fmt.Fprintln(stderr, "isspass:", err)
		return 2
	}

	label, coord := cities.DefaultCity().Name, cities.DefaultCity().Coordinate()
	switch {
	case opts.coordSet:
		coord = propagation.GeoCoordinate{Latitude: opts.lat, Longitude: opts.lon}
		label = fmt.Sprintf("%.4f, %.4f", opts.lat, opts.lon)
	case opts.city != "":
		city, ok := cities.Lookup(opts.city)
		if !ok {
			fmt.Fprintf(stderr, "isspass: %v: %q (known: %v)\n", locations.ErrUnknownCity, opts.city, cities.Names())
			return 2
		}
		label, coord = city.Name, city.Coordinate()
	}
	if !coord.Valid() {
		fmt.Fprintf(stderr, "isspass: %v: lat=%v lon=%v\n", passes.ErrInvalidCoordinate, coord.Latitude, coord.Longitude)
		return 2
	}

	var ts propagation.Timescale = propagation.SystemTimescale{}
	if !opts.at.IsZero() {
		ts = propagation.FixedTimescale(opts.at)
	}

	fetcher := tle.NewFetcher(opts.sourceURL, opts.timeout, logger)
	calc := passes.NewCalculator(passes.Config{
		Window:         time.Duration(opts.hours) * time.Hour,
		MinAltitudeDeg: opts.minElev,
	}, logger)
	trk := tracker.New(tle.NewCache(fetcher, tle.DefaultTTL, logger), ts, calc, logger)

	pos, err := trk.Position(ctx)
	if err != nil {
		var fe *tracker.FetchError
		if errors.As(err, &fe) {
			fmt.Fprintln(stderr, fe.UserMessage())
		} else {
			fmt.Fprintln(stderr, "isspass:", err)
		}
		return 1
	}

	fmt.Fprintf(stdout, "%s (NORAD %d) at %s\n", pos.Name, pos.NORADID, pos.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(stdout, "  Latitude   %.4f°\n", pos.Latitude)
	fmt.Fprintf(stdout, "  Longitude  %.4f°\n", pos.Longitude)
	fmt.Fprintf(stdout, "  Altitude   %.2f km\n\n", pos.AltitudeKm)

	found, err := trk.Passes(ctx, coord)
	if err != nil {
		fmt.Fprintln(stderr, "isspass:", err)
		return 1
	}

	if len(found) == 0 {
		fmt.Fprintf(stdout, "No visible ISS passes found for %s in the next %d hours.\n", label, opts.hours)
		return 0
	}

	fmt.Fprintf(stdout, "Visible passes over %s (elevation >= %.0f°):\n", label, calc.MinAltitude())
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Rise Time (UTC)\tMax Altitude\tDirection\tDuration (min)")
	for _, row := range passes.Rows(found) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.RiseTime, row.MaxAltitude, row.Direction, row.Duration)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintln(stderr, "isspass:", err)
		return 1
	}
	return 0
}
