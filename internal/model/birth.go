// Package model holds the data types shared by the rectification engine,
// its evaluators, persistence and transport layers.
package model

import (
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrInvalidBirthData is matched by every validation failure of BirthData.
var ErrInvalidBirthData = eris.New("model: invalid birth data")

// Location is a geographic place of birth.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Timezone  string  `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Place     string  `json:"place,omitempty" yaml:"place,omitempty"`
}

// Validate checks that the coordinates are on the globe.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return eris.Wrapf(ErrInvalidBirthData, "model: latitude %.4f out of range [-90, 90]", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return eris.Wrapf(ErrInvalidBirthData, "model: longitude %.4f out of range [-180, 180]", l.Longitude)
	}
	return nil
}

// LifeEvent is a dated event used by correlation methods.
type LifeEvent struct {
	Kind        string    `json:"kind" yaml:"kind"`
	Date        time.Time `json:"date" yaml:"date"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	// Weight scales the event's importance (0 means 1).
	Weight float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// BirthData is everything the engine knows about the subject.
type BirthData struct {
	Name     string      `json:"name,omitempty" yaml:"name,omitempty"`
	Estimate time.Time   `json:"estimate" yaml:"estimate"`
	Location Location    `json:"location" yaml:"location"`
	Events   []LifeEvent `json:"events,omitempty" yaml:"events,omitempty"`
}

// Validate checks the minimum inputs a rectification needs.
func (b BirthData) Validate() error {
	if b.Estimate.IsZero() {
		return eris.Wrap(ErrInvalidBirthData, "model: birth estimate is required")
	}
	if err := b.Location.Validate(); err != nil {
		return err
	}
	for i, ev := range b.Events {
		if ev.Date.IsZero() {
			return eris.Wrapf(ErrInvalidBirthData, "model: event %d (%s) has no date", i, ev.Kind)
		}
		if ev.Weight < 0 {
			return eris.Wrapf(ErrInvalidBirthData, "model: event %d (%s) has negative weight", i, ev.Kind)
		}
	}
	return nil
}

// HasEvents reports whether any life events were supplied.
func (b BirthData) HasEvents() bool {
	return len(b.Events) > 0
}

// LoadBirthData reads a YAML (or JSON, which is valid YAML) birth data file.
// A timezone on the location is applied to the estimate when the file gives
// a wall-clock time without an offset.
func LoadBirthData(path string) (*BirthData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read birth data %s", path)
	}
	return ParseBirthData(data)
}

// ParseBirthData decodes birth data from YAML or JSON bytes.
func ParseBirthData(data []byte) (*BirthData, error) {
	var raw struct {
		Name     string      `yaml:"name"`
		Estimate string      `yaml:"estimate"`
		Location Location    `yaml:"location"`
		Events   []LifeEvent `yaml:"events"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "model: parse birth data")
	}

	estimate, err := ParseEstimate(raw.Estimate, raw.Location.Timezone)
	if err != nil {
		return nil, err
	}

	b := &BirthData{
		Name:     raw.Name,
		Estimate: estimate,
		Location: raw.Location,
		Events:   raw.Events,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

var estimateLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseEstimate parses an RFC3339 instant, or a wall-clock time read in the
// IANA zone tz (UTC when empty).
func ParseEstimate(s, tz string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, eris.Wrap(ErrInvalidBirthData, "model: birth estimate is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, eris.Wrapf(ErrInvalidBirthData, "model: load timezone %q: %v", tz, err)
		}
		loc = l
	}
	for _, layout := range estimateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Wrapf(ErrInvalidBirthData, "model: unrecognized estimate %q (use RFC3339 or YYYY-MM-DD HH:MM)", s)
}
