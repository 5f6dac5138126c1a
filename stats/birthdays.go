package stats

import (
	"sort"
	"strconv"

	"github.com/zhumanklv/yandex-academy-task/model"
)

// CitizenPresents says how many first-order relatives of a citizen have a
// birthday in a given month, i.e. how many presents the citizen buys.
type CitizenPresents struct {
	CitizenID int64 `json:"citizen_id" bson:"citizen_id" mapstructure:"citizen_id"`
	Presents  int   `json:"presents" bson:"presents" mapstructure:"presents"`
}

// BirthdaysByMonth groups present counts by calendar month. All twelve keys
// ("1".."12") are always present; citizens with nothing to buy that month are
// omitted from the month's list.
func BirthdaysByMonth(citizens []model.Citizen) map[string][]CitizenPresents {
	byID := make(map[int64]model.Citizen, len(citizens))
	for _, c := range citizens {
		byID[c.CitizenID] = c
	}

	// presents[month][citizen_id]
	presents := make(map[int]map[int64]int)
	for _, c := range citizens {
		for _, relID := range c.Relatives {
			rel, ok := byID[relID]
			if !ok {
				continue
			}
			month := int(rel.BirthDate.Month())
			if presents[month] == nil {
				presents[month] = make(map[int64]int)
			}
			presents[month][c.CitizenID]++
		}
	}

	result := make(map[string][]CitizenPresents, 12)
	for month := 1; month <= 12; month++ {
		entries := make([]CitizenPresents, 0, len(presents[month]))
		for id, count := range presents[month] {
			entries = append(entries, CitizenPresents{CitizenID: id, Presents: count})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].CitizenID < entries[j].CitizenID })
		result[strconv.Itoa(month)] = entries
	}

	return result
}
