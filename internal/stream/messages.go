package stream

import (
	"time"

	"github.com/star/isstrack/internal/tle"
	"github.com/star/isstrack/internal/tracker"
)

type metadataMessage struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	NORADID    int    `json:"norad_id"`
	Epoch      string `json:"epoch"`
	TLEAgeSecs int    `json:"tle_age_seconds"`
}

type positionMessage struct {
	Type       string  `json:"type"`
	T          string  `json:"t"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AltitudeKm float64 `json:"altitude_km"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func newMetadata(set tle.ElementSet, now time.Time) metadataMessage {
	m := metadataMessage{
		Type:       "metadata",
		Name:       set.Name,
		NORADID:    set.NORADID,
		TLEAgeSecs: int(set.Age(now).Seconds()),
	}
	if !set.Epoch.IsZero() {
		m.Epoch = set.Epoch.UTC().Format(time.RFC3339)
	}
	return m
}

func newPosition(p tracker.Position) positionMessage {
	return positionMessage{
		Type:       "position",
		T:          p.Time.UTC().Format(time.RFC3339),
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		AltitudeKm: p.AltitudeKm,
	}
}
