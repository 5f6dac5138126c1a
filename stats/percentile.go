package stats

import (
	"math"
	"sort"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/zhumanklv/yandex-academy-task/model"
)

// TownPercentiles carries age percentiles (full years) for one town.
type TownPercentiles struct {
	Town string  `json:"town" bson:"town" mapstructure:"town"`
	P50  float64 `json:"p50" bson:"p50" mapstructure:"p50"`
	P75  float64 `json:"p75" bson:"p75" mapstructure:"p75"`
	P99  float64 `json:"p99" bson:"p99" mapstructure:"p99"`
}

// TownAgePercentiles computes p50/p75/p99 of citizens' ages per town, towns
// in lexicographic order.
func TownAgePercentiles(citizens []model.Citizen, now time.Time) []TownPercentiles {
	towns := treemap.NewWithStringComparator()

	for _, c := range citizens {
		age := float64(FullYears(c.BirthDate.Time, now))

		if existing, found := towns.Get(c.Town); found {
			towns.Put(c.Town, append(existing.([]float64), age))
		} else {
			towns.Put(c.Town, []float64{age})
		}
	}

	result := make([]TownPercentiles, 0, towns.Size())
	towns.Each(func(key interface{}, value interface{}) {
		ages := value.([]float64)
		sort.Float64s(ages)

		result = append(result, TownPercentiles{
			Town: key.(string),
			P50:  round2(Percentile(ages, 50)),
			P75:  round2(Percentile(ages, 75)),
			P99:  round2(Percentile(ages, 99)),
		})
	})

	return result
}

// Percentile computes the p-th percentile of sorted values using linear
// interpolation between closest ranks. sorted must be ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// FullYears is the number of whole years elapsed from birth to now.
func FullYears(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() ||
		(now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
