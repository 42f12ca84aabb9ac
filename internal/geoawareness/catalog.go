package geoawareness

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Airspace is one region geoawareness can be evaluated against.
type Airspace struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	BBox        [4]float64 `yaml:"bbox,omitempty" json:"bbox,omitempty"` // minLon, minLat, maxLon, maxLat
}

// Contains reports whether (lat, lon) falls inside the airspace's bounding
// box. Airspaces without a box contain nothing.
func (a Airspace) Contains(lat, lon float64) bool {
	if a.BBox == [4]float64{} {
		return false
	}
	return lon >= a.BBox[0] && lat >= a.BBox[1] && lon <= a.BBox[2] && lat <= a.BBox[3]
}

// Catalog is the set of known airspaces.
type Catalog struct {
	Airspaces []Airspace `yaml:"airspaces"`
}

// ParseCatalog decodes a YAML catalog and checks IDs are present and unique.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing airspace catalog: %w", err)
	}
	seen := make(map[string]bool, len(c.Airspaces))
	for i, a := range c.Airspaces {
		if a.ID == "" {
			return nil, fmt.Errorf("airspace %d: missing id", i)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("airspace %s: duplicate id", a.ID)
		}
		seen[a.ID] = true
	}
	sort.Slice(c.Airspaces, func(i, j int) bool { return c.Airspaces[i].ID < c.Airspaces[j].ID })
	return &c, nil
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from config
	if err != nil {
		return nil, fmt.Errorf("reading airspace catalog: %w", err)
	}
	return ParseCatalog(data)
}

// List returns a copy of the airspaces, ordered by ID.
func (c *Catalog) List() []Airspace {
	if c == nil {
		return nil
	}
	return append([]Airspace(nil), c.Airspaces...)
}

// Get looks up an airspace by ID.
func (c *Catalog) Get(id string) (Airspace, bool) {
	if c == nil {
		return Airspace{}, false
	}
	for _, a := range c.Airspaces {
		if a.ID == id {
			return a, true
		}
	}
	return Airspace{}, false
}

// Suggest returns the airspaces whose box contains (lat, lon). The caller
// still has to pick one; a suggestion is never applied automatically.
func (c *Catalog) Suggest(lat, lon float64) []Airspace {
	var out []Airspace
	for _, a := range c.List() {
		if a.Contains(lat, lon) {
			out = append(out, a)
		}
	}
	return out
}
