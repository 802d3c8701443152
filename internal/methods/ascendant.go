package methods

import (
	"context"
	"time"

	"github.com/sells-group/rectify-cli/internal/astro"
	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
)

// breathSignSeconds is how long the life-breath point takes to cross one
// sign: fifteen vighatis of 24 seconds.
const breathSignSeconds = 15 * 24

// alignmentTargets are the offsets from the ascendant at which the
// life-breath point counts as aligned: conjunct, both trines and opposite.
var alignmentTargets = [...]float64{0, 120, 180, 240}

// AscendantAlignment scores how closely the life-breath point, derived from
// the time elapsed since sunrise, falls on the ascendant or its trines.
type AscendantAlignment struct {
	provider astro.Provider
	tables   *tableSet
}

// NewAscendantAlignment creates the method over provider.
func NewAscendantAlignment(provider astro.Provider) *AscendantAlignment {
	return &AscendantAlignment{provider: provider, tables: &standard}
}

// Name implements rectify.Evaluator.
func (m *AscendantAlignment) Name() string { return rectify.MethodAscendantAlignment }

// Evaluate implements rectify.Evaluator. It is not applicable on days
// without a sunrise.
func (m *AscendantAlignment) Evaluate(ctx context.Context, instant time.Time, birth *model.BirthData) (rectify.Score, error) {
	snap, err := snapshotAt(ctx, m.provider, m.Name(), instant, birth)
	if err != nil {
		return rectify.Score{}, err
	}
	sun, ok := snap.Longitude(astro.Sun)
	if !ok || snap.Sunrise.IsZero() {
		return rectify.NotApplicable(), nil
	}

	point := m.tables.lifeBreathPoint(sun, snap.Sunrise, instant)
	return rectify.Scored(AlignmentScore(point, snap.Ascendant)), nil
}

// lifeBreathPoint advances one sign per breathSignSeconds since sunrise,
// starting from the sun shifted by its sign's modality. Instants before
// sunrise count from the previous day's sunrise.
func (t *tableSet) lifeBreathPoint(sun float64, sunrise, instant time.Time) float64 {
	elapsed := instant.Sub(sunrise)
	for elapsed < 0 {
		elapsed += 24 * time.Hour
	}
	modality := int(astro.SignOf(sun)) % 3
	travel := elapsed.Seconds() / breathSignSeconds * 30
	return astro.Normalize(sun + t.modalityShift[modality] + travel)
}

// AlignmentScore is 100 when point sits exactly on an alignment target of
// asc and falls linearly to 0 at the midpoint between targets.
func AlignmentScore(point, asc float64) float64 {
	d := 180.0
	for _, off := range alignmentTargets {
		d = min(d, astro.AngularDistance(point, asc+off))
	}
	return clampScore(100 * (1 - d/60))
}
