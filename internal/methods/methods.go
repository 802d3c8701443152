// Package methods holds the reference scoring methods registered with the
// rectification engine. Each method reads an astro.Snapshot for the
// candidate instant and maps it to a 0..100 score through the lookup tables
// in tables.go.
package methods

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/astro"
	"github.com/sells-group/rectify-cli/internal/model"
	"github.com/sells-group/rectify-cli/internal/rectify"
)

// Default returns a registry with the four reference methods over provider.
// A nil correlator selects the period correlator over the same provider.
func Default(provider astro.Provider, correlator EventCorrelationProvider) (*rectify.Registry, error) {
	if provider == nil {
		return nil, eris.New("methods: astro provider is required")
	}
	if err := checkStandardTables(); err != nil {
		return nil, err
	}
	if correlator == nil {
		correlator = NewPeriodCorrelator(provider)
	}
	return rectify.NewRegistry(
		NewAscendantAlignment(provider),
		NewSignRelationship(provider),
		NewBeneficMalefic(provider),
		NewEventCorrelation(correlator),
	)
}

// snapshotAt fetches the snapshot for one evaluation.
func snapshotAt(ctx context.Context, p astro.Provider, method string, instant time.Time, birth *model.BirthData) (*astro.Snapshot, error) {
	snap, err := p.PositionsAt(ctx, instant, birth.Location)
	if err != nil {
		return nil, eris.Wrapf(err, "methods: %s positions", method)
	}
	if snap == nil {
		return nil, eris.Errorf("methods: %s: provider returned no snapshot", method)
	}
	return snap, nil
}

func clampScore(v float64) float64 {
	return max(0, min(100, v))
}
