package barrio

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MalformedPolicy decides how a malformed rate field affects the city average.
type MalformedPolicy string

const (
	// PolicyZero counts a malformed field as 0 with the record's full weight.
	PolicyZero MalformedPolicy = "zero"
	// PolicyExclude drops the malformed field of that record from the field's average.
	PolicyExclude MalformedPolicy = "exclude"
)

// ParsePolicy validates a policy name. Empty selects PolicyZero.
func ParsePolicy(s string) (MalformedPolicy, error) {
	switch MalformedPolicy(s) {
	case "", PolicyZero:
		return PolicyZero, nil
	case PolicyExclude:
		return PolicyExclude, nil
	default:
		return "", eris.Errorf("barrio: unknown malformed policy %q", s)
	}
}

// City is the population-weighted summary of a set of neighborhoods. It is
// recomputed wholesale on every refresh.
type City struct {
	Income                  Rate         `json:"renta"`
	LowEducation            Rate         `json:"estudiosBajos"`
	LowSkilledWorkers       Rate         `json:"trabajadoresBajaCalificacion"`
	Employed                Rate         `json:"poblacionOcupada"`
	Population              float64      `json:"poblacion"`
	Neighborhoods           int          `json:"barrios"`
	MalformedFields         int          `json:"malformed_fields"`
	AgeDistribution         Distribution `json:"distribucionEdad"`
	ImmigrationDistribution Distribution `json:"distribucionInmigracion"`
	RoomsDistribution       Distribution `json:"distribucionHabitaciones"`
}

// Aggregator folds neighborhood records into a City.
type Aggregator struct {
	policy MalformedPolicy
}

// NewAggregator creates an Aggregator with the given malformed-field policy.
func NewAggregator(policy MalformedPolicy) *Aggregator {
	if policy == "" {
		policy = PolicyZero
	}
	return &Aggregator{policy: policy}
}

// Policy returns the configured malformed-field policy.
func (a *Aggregator) Policy() MalformedPolicy { return a.policy }

// Aggregate folds records with the default policy.
func Aggregate(records []Neighborhood) City {
	return NewAggregator(PolicyZero).Aggregate(records)
}

// weightedMean keeps a running population-weighted mean. The incremental
// form reproduces a single input exactly and never leaves [min, max].
type weightedMean struct {
	weight float64
	mean   float64
}

func (m *weightedMean) add(x, w float64) {
	if w <= 0 {
		return
	}
	m.weight += w
	m.mean += (w / m.weight) * (x - m.mean)
}

func (m weightedMean) rate() Rate {
	if m.weight == 0 {
		return Rate{}
	}
	return Rate{Value: m.mean, Valid: true}
}

// Aggregate folds records into a City. It never fails: an empty input or
// zero total population yields unavailable rates.
func (a *Aggregator) Aggregate(records []Neighborhood) City {
	city := City{
		Neighborhoods:           len(records),
		AgeDistribution:         Distribution{},
		ImmigrationDistribution: Distribution{},
		RoomsDistribution:       Distribution{},
	}

	var income, lowEdu, lowSkill, employed weightedMean
	for _, rec := range records {
		weight := 0.0
		switch {
		case !rec.Population.Valid():
			city.MalformedFields++
			a.warn(rec, "Poblacion", rec.Population)
		case rec.Population.Value < 0:
			city.MalformedFields++
			a.warn(rec, "Poblacion", rec.Population)
		default:
			weight = rec.Population.Value
		}
		city.Population += weight

		fields := []struct {
			name string
			val  Number
			acc  *weightedMean
		}{
			{"Renta", rec.Income, &income},
			{"Población con estudios bajos", rec.LowEducation, &lowEdu},
			{"Trabajadores de baja calificación", rec.LowSkilledWorkers, &lowSkill},
			{"Población ocupada", rec.Employed, &employed},
		}
		for _, f := range fields {
			if f.val.Valid() {
				f.acc.add(f.val.Value, weight)
				continue
			}
			city.MalformedFields++
			a.warn(rec, f.name, f.val)
			if a.policy == PolicyZero {
				f.acc.add(0, weight)
			}
		}

		city.AgeDistribution.Merge(rec.AgeDistribution)
		city.ImmigrationDistribution.Merge(rec.ImmigrationDistribution)
		city.RoomsDistribution.Merge(rec.RoomsDistribution)
	}

	city.Income = income.rate()
	city.LowEducation = lowEdu.rate()
	city.LowSkilledWorkers = lowSkill.rate()
	city.Employed = employed.rate()
	return city
}

func (a *Aggregator) warn(rec Neighborhood, field string, n Number) {
	zap.L().Warn("barrio: malformed numeric field",
		zap.String("neighborhood", rec.Name),
		zap.String("field", field),
		zap.String("raw", n.Raw),
		zap.Bool("present", n.Present),
		zap.String("policy", string(a.policy)),
	)
}
