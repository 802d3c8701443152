package methods

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/astro"
	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
)

// EventCorrelationProvider scores how well the subject's life events fit a
// candidate birth instant.
type EventCorrelationProvider interface {
	Correlate(ctx context.Context, instant time.Time, birth *model.BirthData) (rectify.Score, error)
}

// EventCorrelation adapts an EventCorrelationProvider to the evaluator
// contract. It is not applicable when no events were supplied.
type EventCorrelation struct {
	correlator EventCorrelationProvider
}

// NewEventCorrelation creates the method over correlator.
func NewEventCorrelation(correlator EventCorrelationProvider) *EventCorrelation {
	return &EventCorrelation{correlator: correlator}
}

// Name implements rectify.Evaluator.
func (m *EventCorrelation) Name() string { return rectify.MethodEventCorrelation }

// Evaluate implements rectify.Evaluator.
func (m *EventCorrelation) Evaluate(ctx context.Context, instant time.Time, birth *model.BirthData) (rectify.Score, error) {
	if m.correlator == nil || !birth.HasEvents() {
		return rectify.NotApplicable(), nil
	}
	s, err := m.correlator.Correlate(ctx, instant, birth)
	if err != nil {
		return rectify.Score{}, eris.Wrap(err, "methods: event_correlation")
	}
	return s, nil
}

const (
	nakshatraSpan = 360.0 / 27
	daysPerYear   = 365.25
	majorShare    = 0.6
)

// Period is one span of the planetary period timeline.
type Period struct {
	Lord  astro.Planet `json:"lord"`
	Start time.Time    `json:"start"`
	End   time.Time    `json:"end"`
}

// Contains reports whether t falls in [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// PeriodCorrelator scores events by the planetary period active when each
// happened, from a timeline seeded by the moon's position at the candidate
// instant. Events of unknown kind or dated before the candidate are ignored.
type PeriodCorrelator struct {
	provider astro.Provider
	tables   *tableSet
}

// NewPeriodCorrelator creates a correlator over provider.
func NewPeriodCorrelator(provider astro.Provider) *PeriodCorrelator {
	return &PeriodCorrelator{provider: provider, tables: &standard}
}

// Correlate implements EventCorrelationProvider.
func (c *PeriodCorrelator) Correlate(ctx context.Context, instant time.Time, birth *model.BirthData) (rectify.Score, error) {
	snap, err := snapshotAt(ctx, c.provider, rectify.MethodEventCorrelation, instant, birth)
	if err != nil {
		return rectify.Score{}, err
	}
	moon, ok := snap.Longitude(astro.Moon)
	if !ok {
		return rectify.NotApplicable(), nil
	}

	majors := c.tables.majorPeriods(instant, moon)
	var sum, weights float64
	for _, ev := range birth.Events {
		row, ok := c.tables.affinity[strings.ToLower(ev.Kind)]
		if !ok || ev.Date.Before(instant) {
			continue
		}
		major, sub, ok := c.tables.lordsAt(majors, ev.Date)
		if !ok {
			continue
		}
		w := ev.Weight
		if w == 0 {
			w = 1
		}
		sum += w * (majorShare*row[major] + (1-majorShare)*row[sub])
		weights += w
	}
	if weights == 0 {
		return rectify.NotApplicable(), nil
	}
	return rectify.Scored(sum / weights), nil
}

// MajorPeriods returns one full cycle of major periods for a birth at
// instant with the moon at moonLon. The first period began before instant
// by the share of its lunar mansion the moon has already crossed.
func MajorPeriods(instant time.Time, moonLon float64) []Period {
	return standard.majorPeriods(instant, moonLon)
}

func (t *tableSet) majorPeriods(instant time.Time, moonLon float64) []Period {
	moonLon = astro.Normalize(moonLon)
	mansion := int(moonLon / nakshatraSpan)
	crossed := (moonLon - float64(mansion)*nakshatraSpan) / nakshatraSpan

	first := mansion % len(t.periods)
	start := instant.Add(-years(t.periods[first].years * crossed))

	out := make([]Period, 0, len(t.periods))
	for i := range t.periods {
		p := t.periods[(first+i)%len(t.periods)]
		end := start.Add(years(p.years))
		out = append(out, Period{Lord: p.lord, Start: start, End: end})
		start = end
	}
	return out
}

// subPeriods splits a major period into the nine sub-periods, starting
// with the major lord, each proportional to its own length.
func (t *tableSet) subPeriods(major Period) []Period {
	first := 0
	for i, p := range t.periods {
		if p.lord == major.Lord {
			first = i
			break
		}
	}
	span := major.End.Sub(major.Start)
	out := make([]Period, 0, len(t.periods))
	start := major.Start
	for i := range t.periods {
		p := t.periods[(first+i)%len(t.periods)]
		end := start.Add(time.Duration(float64(span) * p.years / t.periodTotal))
		if i == len(t.periods)-1 {
			end = major.End
		}
		out = append(out, Period{Lord: p.lord, Start: start, End: end})
		start = end
	}
	return out
}

// lordsAt finds the major and sub-period lords active at date. ok is false
// outside the timeline.
func (t *tableSet) lordsAt(majors []Period, date time.Time) (major, sub astro.Planet, ok bool) {
	for _, m := range majors {
		if !m.Contains(date) {
			continue
		}
		for _, s := range t.subPeriods(m) {
			if s.Contains(date) {
				return m.Lord, s.Lord, true
			}
		}
		return m.Lord, m.Lord, true
	}
	return "", "", false
}

func years(y float64) time.Duration {
	return time.Duration(y * daysPerYear * float64(24*time.Hour))
}
