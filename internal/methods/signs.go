package methods

import (
	"context"
	"time"

	"github.com/sells-group/rectify-cli/internal/astro"
	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
)

// relationScore maps a Relation to its contribution.
var relationScore = [...]float64{Enemy: 20, Neutral: 60, Friend: 100}

// placementScore is indexed by whole-sign house minus one. Angles and
// trines score highest, the sixth, eighth and twelfth lowest.
var placementScore = [12]float64{100, 60, 60, 100, 100, 20, 100, 20, 100, 100, 60, 20}

// SignRelationship scores the ascendant lord: its natural relationship to
// the moon sign's lord, the house it occupies, and its dignity.
type SignRelationship struct {
	provider astro.Provider
	tables   *tableSet
}

// NewSignRelationship creates the method over provider.
func NewSignRelationship(provider astro.Provider) *SignRelationship {
	return &SignRelationship{provider: provider, tables: &standard}
}

// Name implements rectify.Evaluator.
func (m *SignRelationship) Name() string { return rectify.MethodSignRelationship }

// Evaluate implements rectify.Evaluator.
func (m *SignRelationship) Evaluate(ctx context.Context, instant time.Time, birth *model.BirthData) (rectify.Score, error) {
	snap, err := snapshotAt(ctx, m.provider, m.Name(), instant, birth)
	if err != nil {
		return rectify.Score{}, err
	}

	lord := m.tables.ruler(snap.AscendantSign())
	lordLon, ok := snap.Longitude(lord)
	if !ok {
		return rectify.NotApplicable(), nil
	}
	moon, ok := snap.Longitude(astro.Moon)
	if !ok {
		return rectify.NotApplicable(), nil
	}

	rel := relationScore[m.tables.relation(lord, m.tables.ruler(astro.SignOf(moon)))]
	placement := placementScore[snap.HouseOf(lord)-1]
	dignity := m.tables.dignity(lord, astro.SignOf(lordLon))
	return rectify.Scored((rel + placement + dignity) / 3), nil
}
