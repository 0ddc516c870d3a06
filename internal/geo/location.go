// Package geo finds the coordinates the weather query runs against.
package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Location sources shown to the user.
const (
	SourceIntercept = "系统定位"
	SourceIP        = "IP定位"
	SourceIPBackup  = "备用IP定位"
	SourceDefault   = "默认"
)

// Location is a point plus whatever place names the resolver found.
// Coordinates decode from JSON numbers or numeric strings, since
// intercepted locations were historically stored as text.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
	Region    string  `json:"region,omitempty"`
	Country   string  `json:"country,omitempty"`
	Source    string  `json:"source,omitempty"`
}

// Valid reports whether both coordinates are set. A zero coordinate counts
// as unset.
func (l Location) Valid() bool { return l.Latitude != 0 && l.Longitude != 0 }

func (l Location) String() string {
	return strconv.FormatFloat(l.Latitude, 'f', -1, 64) + ", " + strconv.FormatFloat(l.Longitude, 'f', -1, 64)
}

func (l *Location) UnmarshalJSON(data []byte) error {
	var raw struct {
		Latitude  flexFloat `json:"latitude"`
		Longitude flexFloat `json:"longitude"`
		City      string    `json:"city"`
		Region    string    `json:"region"`
		Country   string    `json:"country"`
		Source    string    `json:"source"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Location{
		Latitude:  float64(raw.Latitude),
		Longitude: float64(raw.Longitude),
		City:      raw.City,
		Region:    raw.Region,
		Country:   raw.Country,
		Source:    raw.Source,
	}
	return nil
}

// Default is used when nothing else resolves.
func Default() Location {
	return Location{Latitude: 39.9042, Longitude: 116.4074, City: "北京", Source: SourceDefault}
}

// flexFloat accepts 1.5, "1.5" and null. Unparseable text decodes as 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("coordinate: %w", err)
	}
	*f = flexFloat(v)
	return nil
}

// Intercepted weather and geocode requests carry the device location in
// their URL. Patterns are tried in order.
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`weather/.*?/(.*)/(.*)\?`),
	regexp.MustCompile(`geocode/([0-9.]*)/([0-9.]*)/`),
	regexp.MustCompile(`geocode=([0-9.]*),([0-9.]*)`),
}

// FromURL extracts latitude and longitude from an intercepted request URL.
func FromURL(u string) (Location, bool) {
	for _, re := range urlPatterns {
		m := re.FindStringSubmatch(u)
		if m == nil {
			continue
		}
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lng, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			return Location{}, false
		}
		return Location{Latitude: lat, Longitude: lng, Source: SourceIntercept}, true
	}
	return Location{}, false
}
