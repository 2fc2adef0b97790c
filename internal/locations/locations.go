// Package locations holds the static table of observer cities.
package locations

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/star/isstrack/internal/propagation"
)

//go:embed cities.yaml
var defaultCities []byte

// ErrUnknownCity reports a city name that is not in the table.
var ErrUnknownCity = errors.New("unknown city")

// City is a named observer location.
type City struct {
	Name      string  `yaml:"name" json:"name"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
}

// Coordinate returns the city's position.
func (c City) Coordinate() propagation.GeoCoordinate {
	return propagation.GeoCoordinate{Latitude: c.Latitude, Longitude: c.Longitude}
}

type file struct {
	Cities []City `yaml:"cities"`
}

// Table is an ordered, read-only city list.
type Table struct {
	cities []City
	index  map[string]int
}

// Default returns the embedded city table.
func Default() *Table {
	t, err := Parse(defaultCities)
	if err != nil {
		panic(fmt.Sprintf("embedded cities.yaml: %v", err))
	}
	return t
}

// Load reads a city table from a YAML file. An empty path selects the
// embedded table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cities file: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a YAML city table.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding cities: %w", err)
	}
	if len(f.Cities) == 0 {
		return nil, errors.New("city table is empty")
	}

	t := &Table{
		cities: f.Cities,
		index:  make(map[string]int, len(f.Cities)),
	}
	for i, c := range f.Cities {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("city %d has no name", i)
		}
		if !c.Coordinate().Valid() {
			return nil, fmt.Errorf("city %q: coordinate (%v, %v) out of range", name, c.Latitude, c.Longitude)
		}
		key := strings.ToLower(name)
		if _, dup := t.index[key]; dup {
			return nil, fmt.Errorf("duplicate city %q", name)
		}
		t.cities[i].Name = name
		t.index[key] = i
	}
	return t, nil
}

// All returns the cities in table order.
func (t *Table) All() []City {
	out := make([]City, len(t.cities))
	copy(out, t.cities)
	return out
}

// Names returns the city names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cities))
	for i, c := range t.cities {
		names[i] = c.Name
	}
	return names
}

// DefaultCity returns the first city in the table.
func (t *Table) DefaultCity() City {
	return t.cities[0]
}

// Lookup finds a city by name, ignoring case and surrounding space.
func (t *Table) Lookup(name string) (City, bool) {
	i, ok := t.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return City{}, false
	}
	return t.cities[i], true
}
