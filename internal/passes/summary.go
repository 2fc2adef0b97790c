package passes

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/star/isstrack/internal/locations"
	"github.com/star/isstrack/internal/propagation"
)

// CitySummary is the next pass over one city.
type CitySummary struct {
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Passes    int     `json:"passes"`
	Next      *Row    `json:"next,omitempty"`
}

// Summarize predicts passes for every city concurrently and reports each
// city's next pass, in the order the cities were given. The first failure
// cancels the remaining work.
func (c *Calculator) Summarize(ctx context.Context, sat propagation.Satellite, ts propagation.Timescale, cities []locations.City) ([]CitySummary, error) {
	out := make([]CitySummary, len(cities))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, city := range cities {
		g.Go(func() error {
			passes, err := c.Calculate(ctx, sat, ts, city.Coordinate())
			if err != nil {
				return err
			}
			s := CitySummary{
				City:      city.Name,
				Latitude:  city.Latitude,
				Longitude: city.Longitude,
				Passes:    len(passes),
			}
			if len(passes) > 0 {
				row := passes[0].Row()
				s.Next = &row
			}
			out[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
