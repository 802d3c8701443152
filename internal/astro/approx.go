package astro

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/model"
)

const (
	j2000       = 2451545.0
	unixEpochJD = 2440587.5
	degToRad    = math.Pi / 180
	radToDeg    = 180 / math.Pi
)

// meanElements are J2000 mean longitude (deg), rate (deg per Julian
// century) and semi-major axis (AU) of a circular heliocentric orbit.
type meanElements struct {
	l0, rate, a float64
}

var planetElements = map[Planet]meanElements{
	Mercury: {252.25084, 149472.67411, 0.38710},
	Venus:   {181.97973, 58517.81539, 0.72333},
	Mars:    {355.43300, 19140.30268, 1.52368},
	Jupiter: {34.35151, 3034.90567, 5.20260},
	Saturn:  {50.07744, 1222.11379, 9.55491},
}

// ApproxProvider is a low-precision analytic ephemeris. The Sun is good to
// about 0.01 degree, the Moon to about 0.3 degree and the planets (circular,
// coplanar orbits) to a few degrees. That is adequate for ranking candidates
// minutes apart, where the ascendant dominates, but not for exact work.
type ApproxProvider struct {
	// AyanamsaAt returns the precession correction in degrees. Defaults to
	// LahiriAyanamsa.
	AyanamsaAt func(t time.Time) float64
}

// NewApproxProvider creates an ApproxProvider with the Lahiri correction.
func NewApproxProvider() *ApproxProvider {
	return &ApproxProvider{AyanamsaAt: LahiriAyanamsa}
}

// LahiriAyanamsa is a linear approximation of the Lahiri ayanamsa.
func LahiriAyanamsa(t time.Time) float64 {
	return 23.853 + 1.3972*julianCenturies(julianDay(t))
}

// PositionsAt implements Provider.
func (p *ApproxProvider) PositionsAt(ctx context.Context, instant time.Time, loc model.Location) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "astro: approx positions")
	}
	if err := loc.Validate(); err != nil {
		return nil, eris.Wrap(err, "astro: approx positions")
	}
	ayanamsaAt := p.AyanamsaAt
	if ayanamsaAt == nil {
		ayanamsaAt = LahiriAyanamsa
	}

	jd := julianDay(instant)
	t := julianCenturies(jd)
	ayan := ayanamsaAt(instant)

	sun := sunLongitude(t)
	tropical := map[Planet]float64{
		Sun:  sun,
		Moon: moonLongitude(t),
	}
	for planet, el := range planetElements {
		tropical[planet] = geocentricLongitude(el, t, sun)
	}
	node := Normalize(125.04452 - 1934.136261*t)
	tropical[Rahu] = node
	tropical[Ketu] = node + 180

	longitudes := make(map[Planet]float64, len(tropical))
	for planet, lon := range tropical {
		longitudes[planet] = Normalize(lon - ayan)
	}

	asc := Normalize(ascendant(jd, t, loc.Latitude, loc.Longitude) - ayan)
	rise, set := sunriseSunset(jd, loc.Latitude, loc.Longitude)

	return &Snapshot{
		Instant:    instant.UTC(),
		Longitudes: longitudes,
		Ascendant:  asc,
		Cusps:      WholeSignCusps(asc),
		Sunrise:    rise,
		Sunset:     set,
		Ayanamsa:   ayan,
	}, nil
}

func julianDay(t time.Time) float64 {
	return float64(t.UnixNano())/float64(24*time.Hour) + unixEpochJD
}

func julianCenturies(jd float64) float64 {
	return (jd - j2000) / 36525
}

func timeFromJulianDay(jd float64) time.Time {
	ns := (jd - unixEpochJD) * float64(24*time.Hour)
	return time.Unix(0, int64(math.Round(ns))).UTC()
}

func sind(d float64) float64 { return math.Sin(d * degToRad) }
func cosd(d float64) float64 { return math.Cos(d * degToRad) }

func sunLongitude(t float64) float64 {
	l0 := 280.46646 + 36000.76983*t + 0.0003032*t*t
	m := 357.52911 + 35999.05029*t - 0.0001537*t*t
	c := (1.914602-0.004817*t-0.000014*t*t)*sind(m) +
		(0.019993-0.000101*t)*sind(2*m) +
		0.000289*sind(3*m)
	return Normalize(l0 + c)
}

func moonLongitude(t float64) float64 {
	lp := 218.3164477 + 481267.88123421*t
	d := 297.8501921 + 445267.1114034*t
	m := 357.5291092 + 35999.0502909*t
	mp := 134.9633964 + 477198.8675055*t
	f := 93.2720950 + 483202.0175233*t
	lon := lp +
		6.289*sind(mp) +
		1.274*sind(2*d-mp) +
		0.658*sind(2*d) +
		0.214*sind(2*mp) -
		0.186*sind(m) -
		0.114*sind(2*f)
	return Normalize(lon)
}

// geocentricLongitude projects a circular heliocentric orbit onto the
// ecliptic as seen from Earth.
func geocentricLongitude(el meanElements, t, sunLon float64) float64 {
	lp := el.l0 + el.rate*t
	le := sunLon + 180
	x := el.a*cosd(lp) - cosd(le)
	y := el.a*sind(lp) - sind(le)
	return Normalize(math.Atan2(y, x) * radToDeg)
}

// ascendant returns the tropical ecliptic longitude rising in the east.
func ascendant(jd, t, lat, lon float64) float64 {
	gmst := 280.46061837 + 360.98564736629*(jd-j2000) + 0.000387933*t*t
	ramc := Normalize(gmst + lon)
	eps := 23.439291 - 0.0130042*t
	y := cosd(ramc)
	x := -(sind(ramc)*cosd(eps) + math.Tan(lat*degToRad)*sind(eps))
	return Normalize(math.Atan2(y, x) * radToDeg)
}

// sunriseSunset solves the sunrise equation for the local day containing
// jd. Both results are zero during polar day or night.
func sunriseSunset(jd, lat, lon float64) (time.Time, time.Time) {
	n := math.Floor(jd - j2000 + lon/360 + 0.5)
	jStar := n - lon/360
	m := Normalize(357.5291 + 0.98560028*jStar)
	c := 1.9148*sind(m) + 0.02*sind(2*m) + 0.0003*sind(3*m)
	lambda := Normalize(m + c + 180 + 102.9372)
	transit := j2000 + jStar + 0.0053*sind(m) - 0.0069*sind(2*lambda)

	sinDec := sind(lambda) * sind(23.4397)
	cosDec := math.Cos(math.Asin(sinDec))
	cosH := (sind(-0.833) - sind(lat)*sinDec) / (cosd(lat) * cosDec)
	if cosH < -1 || cosH > 1 {
		return time.Time{}, time.Time{}
	}
	h := math.Acos(cosH) * radToDeg
	return timeFromJulianDay(transit - h/360), timeFromJulianDay(transit + h/360)
}
