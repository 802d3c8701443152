package astro

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// flexTime accepts a bare RFC3339 string, null, or an object carrying the
// value under "time" (some ephemeris services nest rise/set that way).
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '{' {
		var nested struct {
			Time *flexTime `json:"time"`
		}
		if err := json.Unmarshal(data, &nested); err != nil {
			return eris.Wrap(err, "astro: decode nested time")
		}
		if nested.Time != nil {
			f.Time = nested.Time.Time
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return eris.Wrap(err, "astro: decode time")
	}
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return eris.Wrapf(err, "astro: parse time %q", s)
	}
	f.Time = t.UTC()
	return nil
}

// flexDegree accepts a bare number or an object with "longitude".
type flexDegree struct {
	Value float64
	Set   bool
}

func (f *flexDegree) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '{' {
		var nested struct {
			Longitude *float64 `json:"longitude"`
		}
		if err := json.Unmarshal(data, &nested); err != nil {
			return eris.Wrap(err, "astro: decode nested longitude")
		}
		if nested.Longitude != nil {
			f.Value, f.Set = *nested.Longitude, true
		}
		return nil
	}
	if err := json.Unmarshal(data, &f.Value); err != nil {
		return eris.Wrap(err, "astro: decode longitude")
	}
	f.Set = true
	return nil
}

type rawSnapshot struct {
	Instant     flexTime              `json:"instant"`
	Planets     map[string]flexDegree `json:"planets"`
	Longitudes  map[string]flexDegree `json:"planetary_longitudes"`
	Ascendant   flexDegree            `json:"ascendant"`
	Cusps       []float64             `json:"cusps"`
	HouseCusps  []float64             `json:"house_cusps"`
	Sunrise     flexTime              `json:"sunrise"`
	Sunset      flexTime              `json:"sunset"`
	Ayanamsa    float64               `json:"ayanamsa"`
	Tropical    bool                  `json:"tropical"`
	ZodiacFrame string                `json:"zodiac"`
}

// DecodeSnapshot normalizes an external ephemeris payload into a Snapshot.
// Tropical payloads (tropical=true or zodiac="tropical") are shifted by the
// reported ayanamsa. Unknown bodies are ignored; missing cusps are derived
// as whole-sign houses.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "astro: decode snapshot")
	}
	if !raw.Ascendant.Set {
		return nil, eris.New("astro: snapshot has no ascendant")
	}

	shift := 0.0
	if raw.Tropical || strings.EqualFold(raw.ZodiacFrame, "tropical") {
		shift = raw.Ayanamsa
	}

	bodies := raw.Planets
	if len(bodies) == 0 {
		bodies = raw.Longitudes
	}
	longitudes := make(map[Planet]float64, len(bodies))
	for name, deg := range bodies {
		p := Planet(strings.ToLower(name))
		if !p.Valid() || !deg.Set {
			continue
		}
		if math.IsNaN(deg.Value) || math.IsInf(deg.Value, 0) {
			return nil, eris.Errorf("astro: snapshot longitude for %s is not finite", p)
		}
		longitudes[p] = Normalize(deg.Value - shift)
	}
	if math.IsNaN(raw.Ascendant.Value) || math.IsInf(raw.Ascendant.Value, 0) {
		return nil, eris.New("astro: snapshot ascendant is not finite")
	}

	asc := Normalize(raw.Ascendant.Value - shift)
	snap := &Snapshot{
		Instant:    raw.Instant.Time,
		Longitudes: longitudes,
		Ascendant:  asc,
		Sunrise:    raw.Sunrise.Time,
		Sunset:     raw.Sunset.Time,
		Ayanamsa:   raw.Ayanamsa,
	}

	cusps := raw.HouseCusps
	if len(cusps) == 0 {
		cusps = raw.Cusps
	}
	switch len(cusps) {
	case 0:
		snap.Cusps = WholeSignCusps(asc)
	case 12:
		for i, c := range cusps {
			snap.Cusps[i] = Normalize(c - shift)
		}
	default:
		return nil, eris.Errorf("astro: snapshot has %d house cusps, want 12", len(cusps))
	}
	return snap, nil
}
