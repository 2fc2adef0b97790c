package locations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	want := []string{"Rourkela", "New Delhi", "Mumbai", "London", "New York", "Tokyo", "Sydney"}
	names := table.Names()
	if len(names) != len(want) {
		t.Fatalf("got %d cities, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("city %d = %q, want %q", i, names[i], want[i])
		}
	}

	if d := table.DefaultCity(); d.Name != "Rourkela" {
		t.Errorf("default city = %q, want Rourkela", d.Name)
	}

	sydney, ok := table.Lookup("Sydney")
	if !ok {
		t.Fatal("Sydney not found")
	}
	if sydney.Latitude != -33.8688 || sydney.Longitude != 151.2093 {
		t.Errorf("Sydney = (%v, %v)", sydney.Latitude, sydney.Longitude)
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	table := Default()
	for _, name := range []string{"new york", "NEW YORK", "  New York  "} {
		c, ok := table.Lookup(name)
		if !ok {
			t.Errorf("Lookup(%q) not found", name)
			continue
		}
		if c.Name != "New York" {
			t.Errorf("Lookup(%q) = %q", name, c.Name)
		}
	}
	if _, ok := table.Lookup("Atlantis"); ok {
		t.Error("Lookup(Atlantis) should fail")
	}
}

func TestAllReturnsCopy(t *testing.T) {
	table := Default()
	all := table.All()
	all[0].Name = "Changed"
	if table.DefaultCity().Name != "Rourkela" {
		t.Error("All should not expose the table's backing slice")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"empty", "cities: []", "empty"},
		{"bad yaml", "cities: [", "decoding"},
		{"no name", "cities:\n  - latitude: 1\n    longitude: 2\n", "no name"},
		{"latitude range", "cities:\n  - name: X\n    latitude: 91\n    longitude: 0\n", "out of range"},
		{"longitude range", "cities:\n  - name: X\n    latitude: 0\n    longitude: -181\n", "out of range"},
		{"duplicate", "cities:\n  - name: X\n    latitude: 0\n    longitude: 0\n  - name: x\n    latitude: 1\n    longitude: 1\n", "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.yaml")
	data := "cities:\n  - name: Reykjavik\n    latitude: 64.1466\n    longitude: -21.9426\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.DefaultCity().Name != "Reykjavik" {
		t.Errorf("default city = %q", table.DefaultCity().Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	def, err := Load("")
	if err != nil || def.DefaultCity().Name != "Rourkela" {
		t.Errorf("Load(\"\") = %v, %v; want embedded table", def, err)
	}
}
