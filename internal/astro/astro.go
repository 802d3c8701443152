// Package astro defines the astronomical snapshot consumed by scoring
// methods and the providers that produce it.
package astro

import (
	"context"
	"math"
	"time"

	"github.com/sells-group/rectify-cli/internal/model"
)

// Planet identifies a body (or lunar node) tracked by a snapshot.
type Planet string

const (
	Sun     Planet = "sun"
	Moon    Planet = "moon"
	Mercury Planet = "mercury"
	Venus   Planet = "venus"
	Mars    Planet = "mars"
	Jupiter Planet = "jupiter"
	Saturn  Planet = "saturn"
	Rahu    Planet = "rahu"
	Ketu    Planet = "ketu"
)

// Planets lists every body a complete snapshot carries, in traditional order.
var Planets = []Planet{Sun, Moon, Mars, Mercury, Jupiter, Venus, Saturn, Rahu, Ketu}

// Valid reports whether p is one of the known bodies.
func (p Planet) Valid() bool {
	for _, q := range Planets {
		if p == q {
			return true
		}
	}
	return false
}

// Sign is a zodiac sign index, Aries = 0 through Pisces = 11.
type Sign int

const (
	Aries Sign = iota
	Taurus
	Gemini
	Cancer
	Leo
	Virgo
	Libra
	Scorpio
	Sagittarius
	Capricorn
	Aquarius
	Pisces
)

var signNames = [12]string{
	"aries", "taurus", "gemini", "cancer", "leo", "virgo",
	"libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces",
}

func (s Sign) String() string {
	if s < 0 || s > 11 {
		return "unknown"
	}
	return signNames[s]
}

// Snapshot is the canonical set of sidereal positions for one instant and
// place. All longitudes are in degrees, normalized to [0, 360).
// Sunrise and Sunset are zero when the sun does not rise or set that day.
type Snapshot struct {
	Instant    time.Time          `json:"instant"`
	Longitudes map[Planet]float64 `json:"longitudes"`
	Ascendant  float64            `json:"ascendant"`
	Cusps      [12]float64        `json:"cusps"`
	Sunrise    time.Time          `json:"sunrise,omitzero"`
	Sunset     time.Time          `json:"sunset,omitzero"`
	Ayanamsa   float64            `json:"ayanamsa"`
}

// Longitude returns the longitude of p and whether the snapshot carries it.
func (s *Snapshot) Longitude(p Planet) (float64, bool) {
	v, ok := s.Longitudes[p]
	return v, ok
}

// AscendantSign returns the rising sign.
func (s *Snapshot) AscendantSign() Sign {
	return SignOf(s.Ascendant)
}

// HouseOf returns the whole-sign house (1..12) of p counted from the
// ascendant, or 0 when p is missing.
func (s *Snapshot) HouseOf(p Planet) int {
	lon, ok := s.Longitudes[p]
	if !ok {
		return 0
	}
	return SignDistance(s.AscendantSign(), SignOf(lon)) + 1
}

// Provider computes snapshots. Implementations must be safe for concurrent
// use when the engine evaluates in parallel.
type Provider interface {
	PositionsAt(ctx context.Context, instant time.Time, loc model.Location) (*Snapshot, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, instant time.Time, loc model.Location) (*Snapshot, error)

// PositionsAt calls f.
func (f ProviderFunc) PositionsAt(ctx context.Context, instant time.Time, loc model.Location) (*Snapshot, error) {
	return f(ctx, instant, loc)
}

// Normalize maps any angle to [0, 360).
func Normalize(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// AngularDistance is the shortest arc between two longitudes, in [0, 180].
func AngularDistance(a, b float64) float64 {
	d := math.Abs(Normalize(a) - Normalize(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// SignOf returns the sign containing a longitude.
func SignOf(lon float64) Sign {
	return Sign(int(Normalize(lon)/30) % 12)
}

// SignDistance counts signs forward from a to b, in [0, 11].
func SignDistance(a, b Sign) int {
	return ((int(b)-int(a))%12 + 12) % 12
}

// WholeSignCusps returns the twelve house cusps starting at the ascendant's
// sign boundary.
func WholeSignCusps(asc float64) [12]float64 {
	var cusps [12]float64
	start := float64(SignOf(asc)) * 30
	for i := range cusps {
		cusps[i] = Normalize(start + float64(i)*30)
	}
	return cusps
}
