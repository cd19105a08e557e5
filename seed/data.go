// Package seed holds the static reference data used when providers are
// unavailable: destination facts, city coordinates and country capitals.
package seed

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/c360studio/semtrip/trip"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// DefaultCoordinate is used when nothing else is known about a place.
var DefaultCoordinate = trip.Coordinate{Lat: 39.9042, Lng: 116.4074}

// Destination is the static fact sheet for one destination.
type Destination struct {
	Attractions []string `yaml:"attractions"`
	Cuisine     []string `yaml:"cuisine"`
	Airport     string   `yaml:"airport"`
	Transport   string   `yaml:"transport"`
	Climate     string   `yaml:"climate"`
}

// City is a named coordinate.
type City struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
}

// Coordinate returns the city's coordinate.
func (c City) Coordinate() trip.Coordinate {
	return trip.Coordinate{Lat: c.Lat, Lng: c.Lng}
}

// Data is one complete snapshot of reference data.
type Data struct {
	Destinations  map[string]Destination     `yaml:"destinations"`
	Cities        []City                     `yaml:"cities"`
	Countries     map[string]string          `yaml:"countries"`
	International map[string]trip.Coordinate `yaml:"international"`
	CulturalTips  []string                   `yaml:"cultural_tips"`
}

// Parse decodes one YAML document.
func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse seed data: %w", err)
	}
	return &d, nil
}

// Defaults returns the embedded reference data.
func Defaults() *Data {
	d, err := Parse(defaultsYAML)
	if err != nil {
		panic("embedded seed data is invalid: " + err.Error())
	}
	return d
}

// Merge overlays other onto a copy of d. Map entries are replaced by key,
// cities by name, and tip lists replaced when other has any.
func (d *Data) Merge(other *Data) *Data {
	out := &Data{
		Destinations:  make(map[string]Destination, len(d.Destinations)),
		Countries:     make(map[string]string, len(d.Countries)),
		International: make(map[string]trip.Coordinate, len(d.International)),
		Cities:        append([]City(nil), d.Cities...),
		CulturalTips:  append([]string(nil), d.CulturalTips...),
	}
	for k, v := range d.Destinations {
		out.Destinations[k] = v
	}
	for k, v := range d.Countries {
		out.Countries[k] = v
	}
	for k, v := range d.International {
		out.International[k] = v
	}
	if other == nil {
		return out
	}

	for k, v := range other.Destinations {
		out.Destinations[k] = v
	}
	for k, v := range other.Countries {
		out.Countries[k] = v
	}
	for k, v := range other.International {
		out.International[k] = v
	}
	for _, c := range other.Cities {
		replaced := false
		for i := range out.Cities {
			if out.Cities[i].Name == c.Name {
				out.Cities[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			out.Cities = append(out.Cities, c)
		}
	}
	if len(other.CulturalTips) > 0 {
		out.CulturalTips = append([]string(nil), other.CulturalTips...)
	}
	return out
}

// Destination returns the fact sheet for name, matching exactly first and
// then any known destination contained in name.
func (d *Data) Destination(name string) (Destination, bool) {
	if dest, ok := d.Destinations[name]; ok {
		return dest, true
	}
	keys := make([]string, 0, len(d.Destinations))
	for key := range d.Destinations {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if key != "" && strings.Contains(name, key) {
			return d.Destinations[key], true
		}
	}
	return Destination{}, false
}

// GenericDestination builds a placeholder fact sheet.
func GenericDestination(name string) Destination {
	return Destination{
		Attractions: []string{name + "著名景点1", name + "著名景点2", name + "著名景点3"},
		Cuisine:     []string{name + "特色美食1", name + "特色美食2"},
		Airport:     name + "机场",
		Transport:   "公共交通",
	}
}

// CityFor returns the first table city contained in destination.
func (d *Data) CityFor(destination string) (City, bool) {
	for _, c := range d.Cities {
		if c.Name != "" && strings.Contains(destination, c.Name) {
			return c, true
		}
	}
	return City{}, false
}

// CapitalOf maps a country name to the city used for geocoding.
func (d *Data) CapitalOf(country string) (string, bool) {
	city, ok := d.Countries[strings.TrimSpace(country)]
	return city, ok
}

// InternationalCoordinate returns the stored coordinate of a foreign city.
func (d *Data) InternationalCoordinate(city string) (trip.Coordinate, bool) {
	c, ok := d.International[city]
	return c, ok
}
