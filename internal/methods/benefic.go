package methods

import (
	"context"
	"time"

	"github.com/sells-group/rectify-cli/internal/astro"
	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
)

// beneficScale converts the summed house effects to score points around 50.
const beneficScale = 1.5

// BeneficMalefic scores the chart by where benefics and malefics fall
// relative to the ascendant.
type BeneficMalefic struct {
	provider astro.Provider
	tables   *tableSet
}

// NewBeneficMalefic creates the method over provider.
func NewBeneficMalefic(provider astro.Provider) *BeneficMalefic {
	return &BeneficMalefic{provider: provider, tables: &standard}
}

// Name implements rectify.Evaluator.
func (m *BeneficMalefic) Name() string { return rectify.MethodBeneficMalefic }

// Evaluate implements rectify.Evaluator. It is not applicable when the
// snapshot carries no known body.
func (m *BeneficMalefic) Evaluate(ctx context.Context, instant time.Time, birth *model.BirthData) (rectify.Score, error) {
	snap, err := snapshotAt(ctx, m.provider, m.Name(), instant, birth)
	if err != nil {
		return rectify.Score{}, err
	}

	total, seen := 0.0, 0
	for _, p := range astro.Planets {
		house := snap.HouseOf(p)
		if house == 0 {
			continue
		}
		total += m.tables.houseEffect[m.tables.nature[p]][house-1]
		seen++
	}
	if seen == 0 {
		return rectify.NotApplicable(), nil
	}
	return rectify.Scored(clampScore(50 + beneficScale*total)), nil
}
