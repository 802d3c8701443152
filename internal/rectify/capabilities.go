package rectify

import (
	"maps"

	"github.com/sells-group/rectify-cli/internal/model"
)

// RuntimeCapabilities reports what a run over birth can offer. Event
// correlation needs at least one life event; high precision needs an
// external ephemeris.
func RuntimeCapabilities(birth *model.BirthData, highPrecision bool) map[string]bool {
	return map[string]bool{
		CapabilityEventCorrelation:       birth != nil && birth.HasEvents(),
		CapabilityHighPrecisionEphemeris: highPrecision,
	}
}

// WithCapabilities returns a copy of o whose capabilities default to caps.
// Entries already set in o win.
func (o *Overrides) WithCapabilities(caps map[string]bool) *Overrides {
	var out Overrides
	if o != nil {
		out = *o
	}
	merged := make(map[string]bool, len(caps)+len(out.Capabilities))
	maps.Copy(merged, caps)
	maps.Copy(merged, out.Capabilities)
	out.Capabilities = merged
	return &out
}
