package methods

import (
	"fmt"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/astro"
)

// Relation is the natural relationship of one planet towards another.
type Relation int

const (
	Enemy Relation = iota
	Neutral
	Friend
)

// Nature classifies a planet as benefic, malefic or neither.
type Nature int

const (
	NatureNeutral Nature = iota
	NatureBenefic
	NatureMalefic
)

// classical are the seven visible planets that rule signs.
var classical = []astro.Planet{astro.Sun, astro.Moon, astro.Mars, astro.Mercury, astro.Jupiter, astro.Venus, astro.Saturn}

// tableSet holds every lookup the reference methods consult. It is checked
// once by validate before any evaluator is built.
type tableSet struct {
	rulers     [12]astro.Planet
	exaltation map[astro.Planet]astro.Sign
	friendship map[astro.Planet]map[astro.Planet]Relation
	nature     map[astro.Planet]Nature

	// houseEffect[nature][house-1] is the score delta of a planet of that
	// nature occupying the house.
	houseEffect map[Nature][12]float64

	// modalityShift is added to the sun's longitude for the life-breath
	// point, indexed by sign modality (movable, fixed, dual).
	modalityShift [3]float64

	periods     []period
	affinity    map[string]map[astro.Planet]float64
	periodTotal float64
}

// period is one lord of the planetary period sequence.
type period struct {
	lord  astro.Planet
	years float64
}

var standard = tableSet{
	rulers: [12]astro.Planet{
		astro.Mars, astro.Venus, astro.Mercury, astro.Moon, astro.Sun, astro.Mercury,
		astro.Venus, astro.Mars, astro.Jupiter, astro.Saturn, astro.Saturn, astro.Jupiter,
	},
	exaltation: map[astro.Planet]astro.Sign{
		astro.Sun:     astro.Aries,
		astro.Moon:    astro.Taurus,
		astro.Mars:    astro.Capricorn,
		astro.Mercury: astro.Virgo,
		astro.Jupiter: astro.Cancer,
		astro.Venus:   astro.Pisces,
		astro.Saturn:  astro.Libra,
	},
	friendship: map[astro.Planet]map[astro.Planet]Relation{
		astro.Sun: {
			astro.Moon: Friend, astro.Mars: Friend, astro.Jupiter: Friend,
			astro.Mercury: Neutral, astro.Venus: Enemy, astro.Saturn: Enemy,
		},
		astro.Moon: {
			astro.Sun: Friend, astro.Mercury: Friend,
			astro.Mars: Neutral, astro.Jupiter: Neutral, astro.Venus: Neutral, astro.Saturn: Neutral,
		},
		astro.Mars: {
			astro.Sun: Friend, astro.Moon: Friend, astro.Jupiter: Friend,
			astro.Venus: Neutral, astro.Saturn: Neutral, astro.Mercury: Enemy,
		},
		astro.Mercury: {
			astro.Sun: Friend, astro.Venus: Friend,
			astro.Mars: Neutral, astro.Jupiter: Neutral, astro.Saturn: Neutral, astro.Moon: Enemy,
		},
		astro.Jupiter: {
			astro.Sun: Friend, astro.Moon: Friend, astro.Mars: Friend,
			astro.Saturn: Neutral, astro.Mercury: Enemy, astro.Venus: Enemy,
		},
		astro.Venus: {
			astro.Mercury: Friend, astro.Saturn: Friend,
			astro.Mars: Neutral, astro.Jupiter: Neutral, astro.Sun: Enemy, astro.Moon: Enemy,
		},
		astro.Saturn: {
			astro.Mercury: Friend, astro.Venus: Friend,
			astro.Jupiter: Neutral, astro.Sun: Enemy, astro.Moon: Enemy, astro.Mars: Enemy,
		},
	},
	nature: map[astro.Planet]Nature{
		astro.Sun:     NatureMalefic,
		astro.Moon:    NatureBenefic,
		astro.Mars:    NatureMalefic,
		astro.Mercury: NatureNeutral,
		astro.Jupiter: NatureBenefic,
		astro.Venus:   NatureBenefic,
		astro.Saturn:  NatureMalefic,
		astro.Rahu:    NatureMalefic,
		astro.Ketu:    NatureMalefic,
	},
	houseEffect: map[Nature][12]float64{
		NatureBenefic: {10, 4, -2, 8, 8, -6, 8, -8, 8, 8, 4, -6},
		NatureMalefic: {-8, -4, 6, -6, -6, 6, -6, -8, -4, -2, 8, -6},
		NatureNeutral: {2, 0, 0, 0, 0, 0, 0, 0, 0, 2, 2, 0},
	},
	modalityShift: [3]float64{0, 240, 120},
	periods: []period{
		{astro.Ketu, 7}, {astro.Venus, 20}, {astro.Sun, 6},
		{astro.Moon, 10}, {astro.Mars, 7}, {astro.Rahu, 18},
		{astro.Jupiter, 16}, {astro.Saturn, 19}, {astro.Mercury, 17},
	},
	periodTotal: 120,
	affinity: map[string]map[astro.Planet]float64{
		EventMarriage: {
			astro.Sun: 30, astro.Moon: 70, astro.Mars: 40, astro.Mercury: 50, astro.Jupiter: 85,
			astro.Venus: 95, astro.Saturn: 30, astro.Rahu: 55, astro.Ketu: 20,
		},
		EventCareer: {
			astro.Sun: 90, astro.Moon: 45, astro.Mars: 70, astro.Mercury: 75, astro.Jupiter: 80,
			astro.Venus: 50, astro.Saturn: 85, astro.Rahu: 65, astro.Ketu: 30,
		},
		EventRelocation: {
			astro.Sun: 35, astro.Moon: 75, astro.Mars: 45, astro.Mercury: 50, astro.Jupiter: 40,
			astro.Venus: 40, astro.Saturn: 60, astro.Rahu: 90, astro.Ketu: 80,
		},
		EventChildBirth: {
			astro.Sun: 50, astro.Moon: 80, astro.Mars: 35, astro.Mercury: 45, astro.Jupiter: 95,
			astro.Venus: 70, astro.Saturn: 25, astro.Rahu: 40, astro.Ketu: 30,
		},
		EventEducation: {
			astro.Sun: 55, astro.Moon: 50, astro.Mars: 40, astro.Mercury: 95, astro.Jupiter: 90,
			astro.Venus: 55, astro.Saturn: 45, astro.Rahu: 50, astro.Ketu: 45,
		},
		EventHealth: {
			astro.Sun: 55, astro.Moon: 45, astro.Mars: 80, astro.Mercury: 30, astro.Jupiter: 20,
			astro.Venus: 25, astro.Saturn: 90, astro.Rahu: 85, astro.Ketu: 80,
		},
		EventLoss: {
			astro.Sun: 60, astro.Moon: 50, astro.Mars: 75, astro.Mercury: 25, astro.Jupiter: 20,
			astro.Venus: 20, astro.Saturn: 95, astro.Rahu: 80, astro.Ketu: 90,
		},
	},
}

// Event kinds with an affinity row.
const (
	EventMarriage   = "marriage"
	EventCareer     = "career"
	EventRelocation = "relocation"
	EventChildBirth = "child_birth"
	EventEducation  = "education"
	EventHealth     = "health"
	EventLoss       = "loss"
)

var (
	tablesOnce sync.Once
	tablesErr  error
)

// checkStandardTables validates the built-in tables once per process.
func checkStandardTables() error {
	tablesOnce.Do(func() { tablesErr = standard.validate() })
	return tablesErr
}

// validate checks every table for completeness and range. An error names
// the first inconsistency found.
func (t *tableSet) validate() error {
	ruled := map[astro.Planet]int{}
	for s, p := range t.rulers {
		if !isClassical(p) {
			return eris.Errorf("methods: sign %s ruled by non-classical %q", astro.Sign(s), p)
		}
		ruled[p]++
	}
	for _, p := range classical {
		if ruled[p] == 0 {
			return eris.Errorf("methods: %s rules no sign", p)
		}
	}

	for _, p := range classical {
		s, ok := t.exaltation[p]
		if !ok || s < astro.Aries || s > astro.Pisces {
			return eris.Errorf("methods: missing or invalid exaltation for %s", p)
		}
		row, ok := t.friendship[p]
		if !ok {
			return eris.Errorf("methods: no friendship row for %s", p)
		}
		if len(row) != len(classical)-1 {
			return eris.Errorf("methods: friendship row for %s has %d entries, want %d", p, len(row), len(classical)-1)
		}
		for _, q := range classical {
			r, ok := row[q]
			switch {
			case p == q && ok:
				return eris.Errorf("methods: %s has a relation to itself", p)
			case p != q && !ok:
				return eris.Errorf("methods: no relation from %s to %s", p, q)
			case ok && (r < Enemy || r > Friend):
				return eris.Errorf("methods: invalid relation %d from %s to %s", r, p, q)
			}
		}
	}

	for _, p := range astro.Planets {
		n, ok := t.nature[p]
		if !ok {
			return eris.Errorf("methods: no nature for %s", p)
		}
		if _, ok := t.houseEffect[n]; !ok {
			return eris.Errorf("methods: no house effects for nature %d", n)
		}
	}

	for i, v := range t.modalityShift {
		if v < 0 || v >= 360 {
			return eris.Errorf("methods: modality shift %d is %v, want [0, 360)", i, v)
		}
	}

	if err := t.validatePeriods(); err != nil {
		return err
	}
	return t.validateAffinity()
}

func (t *tableSet) validatePeriods() error {
	if len(t.periods) != len(astro.Planets) {
		return eris.Errorf("methods: period sequence has %d lords, want %d", len(t.periods), len(astro.Planets))
	}
	seen := map[astro.Planet]bool{}
	sum := 0.0
	for _, p := range t.periods {
		if seen[p.lord] || !p.lord.Valid() {
			return eris.Errorf("methods: period lord %q repeated or unknown", p.lord)
		}
		if p.years <= 0 {
			return eris.Errorf("methods: period of %s has %v years", p.lord, p.years)
		}
		seen[p.lord] = true
		sum += p.years
	}
	if sum != t.periodTotal {
		return eris.Errorf("methods: periods sum to %v years, want %v", sum, t.periodTotal)
	}
	return nil
}

func (t *tableSet) validateAffinity() error {
	for kind, row := range t.affinity {
		for _, p := range astro.Planets {
			v, ok := row[p]
			if !ok {
				return eris.Errorf("methods: affinity for %s lacks %s", kind, p)
			}
			if v < 0 || v > 100 {
				return eris.Errorf("methods: affinity %s/%s is %v, want [0, 100]", kind, p, v)
			}
		}
	}
	return nil
}

// ruler returns the lord of sign s.
func (t *tableSet) ruler(s astro.Sign) astro.Planet {
	return t.rulers[s]
}

// dignity scores a classical planet by its sign: exalted, own, debilitated
// or otherwise.
func (t *tableSet) dignity(p astro.Planet, s astro.Sign) float64 {
	exalt := t.exaltation[p]
	switch {
	case s == exalt:
		return 100
	case t.rulers[s] == p:
		return 85
	case s == astro.Sign((int(exalt)+6)%12):
		return 10
	default:
		return 55
	}
}

func (t *tableSet) relation(from, to astro.Planet) Relation {
	if from == to {
		return Friend
	}
	return t.friendship[from][to]
}

func isClassical(p astro.Planet) bool {
	for _, q := range classical {
		if p == q {
			return true
		}
	}
	return false
}

func (r Relation) String() string {
	switch r {
	case Friend:
		return "friend"
	case Neutral:
		return "neutral"
	case Enemy:
		return "enemy"
	default:
		return fmt.Sprintf("relation(%d)", int(r))
	}
}
