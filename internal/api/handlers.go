package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/isstrack/internal/httputil"
	"github.com/star/isstrack/internal/locations"
	"github.com/star/isstrack/internal/passes"
	"github.com/star/isstrack/internal/propagation"
	"github.com/star/isstrack/internal/tle"
	"github.com/star/isstrack/internal/tracker"
)

type positionResponse struct {
	tracker.Position
	Display positionDisplay `json:"display"`
}

type positionDisplay struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Altitude  string `json:"altitude"`
}

type citiesResponse struct {
	Default string           `json:"default"`
	Cities  []locations.City `json:"cities"`
}

type passesResponse struct {
	City           string       `json:"city"`
	Latitude       float64      `json:"latitude"`
	Longitude      float64      `json:"longitude"`
	WindowHours    float64      `json:"window_hours"`
	MinElevation   float64      `json:"min_elevation_deg"`
	Count          int          `json:"count"`
	Passes         []passes.Row `json:"passes"`
	Message        string       `json:"message,omitempty"`
	ComputedAtUTC  string       `json:"computed_at"`
	ComputeSeconds float64      `json:"compute_seconds"`
}

type summaryResponse struct {
	Cities []passes.CitySummary `json:"cities"`
}

type tleResponse struct {
	Name          string `json:"name"`
	Line1         string `json:"line1"`
	Line2         string `json:"line2"`
	NORADID       int    `json:"norad_id"`
	Epoch         string `json:"epoch,omitempty"`
	FetchedAt     string `json:"fetched_at,omitempty"`
	AgeSeconds    int    `json:"age_seconds"`
	EpochAgeHours int    `json:"epoch_age_hours"`
}

func positionHandler(logger *slog.Logger, trk *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, err := trk.Position(r.Context())
		if err != nil {
			writePipelineError(w, r, logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, positionResponse{
			Position: pos,
			Display: positionDisplay{
				Latitude:  fmt.Sprintf("%.4f°", pos.Latitude),
				Longitude: fmt.Sprintf("%.4f°", pos.Longitude),
				Altitude:  fmt.Sprintf("%.2f km", pos.AltitudeKm),
			},
		})
	}
}

func citiesHandler(cities *locations.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, citiesResponse{
			Default: cities.DefaultCity().Name,
			Cities:  cities.All(),
		})
	}
}

// passesHandler serves /api/v1/passes?city=, /api/v1/passes?lat=&lon= and
// /api/v1/passes/{city}. With no selector the default city is used.
func passesHandler(logger *slog.Logger, trk *tracker.Tracker, cities *locations.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		label, coord, err := resolveObserver(r, cities)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		start := time.Now()
		found, err := trk.Passes(r.Context(), coord)
		if err != nil {
			writePipelineError(w, r, logger, err)
			return
		}

		calc := trk.Calculator()
		resp := passesResponse{
			City:           label,
			Latitude:       coord.Latitude,
			Longitude:      coord.Longitude,
			WindowHours:    calc.Window().Hours(),
			MinElevation:   calc.MinAltitude(),
			Count:          len(found),
			Passes:         passes.Rows(found),
			ComputedAtUTC:  time.Now().UTC().Format(time.RFC3339),
			ComputeSeconds: time.Since(start).Seconds(),
		}
		if len(found) == 0 {
			resp.Message = fmt.Sprintf("No visible ISS passes found for %s in the next %s.", label, windowText(calc.Window()))
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func summaryHandler(logger *slog.Logger, trk *tracker.Tracker, cities *locations.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := trk.Summary(r.Context(), cities.All())
		if err != nil {
			writePipelineError(w, r, logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, summaryResponse{Cities: summaries})
	}
}

func tleHandler(logger *slog.Logger, trk *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := trk.Elements(r.Context())
		if err != nil {
			writePipelineError(w, r, logger, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newTLEResponse(set, time.Now()))
	}
}

func tleRefreshHandler(logger *slog.Logger, trk *tracker.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := trk.Refresh(r.Context())
		if err != nil {
			writePipelineError(w, r, logger, err)
			return
		}
		logger.Info("TLE refreshed on request",
			"component", "api",
			"name", set.Name,
			"epoch", set.Epoch.Format(time.RFC3339),
			"request_id", RequestID(r.Context()),
		)
		httputil.WriteJSON(w, http.StatusOK, newTLEResponse(set, time.Now()))
	}
}

func newTLEResponse(set tle.ElementSet, now time.Time) tleResponse {
	resp := tleResponse{
		Name:       set.Name,
		Line1:      set.Line1,
		Line2:      set.Line2,
		NORADID:    set.NORADID,
		AgeSeconds: int(set.Age(now).Seconds()),
	}
	if !set.Epoch.IsZero() {
		resp.Epoch = set.Epoch.UTC().Format(time.RFC3339)
		resp.EpochAgeHours = int(now.Sub(set.Epoch).Hours())
	}
	if !set.FetchedAt.IsZero() {
		resp.FetchedAt = set.FetchedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// resolveObserver picks the observer from the path, the city query
// parameter, or lat/lon, falling back to the table's default city.
func resolveObserver(r *http.Request, cities *locations.Table) (string, propagation.GeoCoordinate, error) {
	name := r.PathValue("city")
	if name == "" {
		name = r.URL.Query().Get("city")
	}
	latStr, lonStr := r.URL.Query().Get("lat"), r.URL.Query().Get("lon")

	switch {
	case name != "":
		city, ok := cities.Lookup(name)
		if !ok {
			return "", propagation.GeoCoordinate{}, fmt.Errorf("%w: %q", locations.ErrUnknownCity, name)
		}
		return city.Name, city.Coordinate(), nil

	case latStr != "" || lonStr != "":
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return "", propagation.GeoCoordinate{}, errors.New("invalid lat parameter, must be a number in [-90, 90]")
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return "", propagation.GeoCoordinate{}, errors.New("invalid lon parameter, must be a number in [-180, 180]")
		}
		coord := propagation.GeoCoordinate{Latitude: lat, Longitude: lon}
		if !coord.Valid() {
			return "", propagation.GeoCoordinate{}, fmt.Errorf("%w: lat=%v lon=%v", passes.ErrInvalidCoordinate, lat, lon)
		}
		return fmt.Sprintf("%.4f, %.4f", lat, lon), coord, nil

	default:
		city := cities.DefaultCity()
		return city.Name, city.Coordinate(), nil
	}
}

// windowText renders the search window the way users read it: "5 days",
// "36 hours".
func windowText(d time.Duration) string {
	hours := d.Hours()
	if hours >= 24 && hours == float64(int(hours/24))*24 {
		days := int(hours / 24)
		if days == 1 {
			return "1 day"
		}
		return strconv.Itoa(days) + " days"
	}
	text := strconv.FormatFloat(hours, 'f', -1, 64)
	if text == "1" {
		return "1 hour"
	}
	return text + " hours"
}

// writePipelineError maps tracker failures onto HTTP statuses.
func writePipelineError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		fe *tracker.FetchError
		me *tracker.ModelError
	)
	switch {
	case errors.As(err, &fe):
		httputil.WriteError(w, http.StatusBadGateway, fe.UserMessage())
	case errors.As(err, &me):
		httputil.WriteError(w, http.StatusBadGateway, "Error building satellite model: "+me.Err.Error())
	case errors.Is(err, passes.ErrInvalidCoordinate):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		logger.Debug("client went away", "component", "api", "path", r.URL.Path, "request_id", RequestID(r.Context()))
	default:
		logger.Error("request failed",
			"component", "api",
			"path", r.URL.Path,
			"request_id", RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
