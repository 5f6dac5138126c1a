package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhumanklv/yandex-academy-task/model"
)

func Test_birthdaysByMonth(t *testing.T) {
	citizens := []model.Citizen{
		{CitizenID: 1, BirthDate: model.NewDate(1986, time.December, 26), Relatives: []int64{2, 3}},
		{CitizenID: 2, BirthDate: model.NewDate(1997, time.April, 17), Relatives: []int64{1}},
		{CitizenID: 3, BirthDate: model.NewDate(1995, time.April, 23), Relatives: []int64{1}},
	}

	result := BirthdaysByMonth(citizens)

	require.Len(t, result, 12)
	for month := range result {
		assert.NotNil(t, result[month])
	}

	// citizen 1 buys two presents in April, citizens 2 and 3 one each in December
	assert.Equal(t, []CitizenPresents{{CitizenID: 1, Presents: 2}}, result["4"])
	assert.Equal(t, []CitizenPresents{{CitizenID: 2, Presents: 1}, {CitizenID: 3, Presents: 1}}, result["12"])
	assert.Empty(t, result["1"])
}

func Test_birthdaysSelfRelative(t *testing.T) {
	citizens := []model.Citizen{
		{CitizenID: 7, BirthDate: model.NewDate(2000, time.June, 1), Relatives: []int64{7}},
	}

	result := BirthdaysByMonth(citizens)
	assert.Equal(t, []CitizenPresents{{CitizenID: 7, Presents: 1}}, result["6"])
}

func Test_birthdaysNoCitizens(t *testing.T) {
	result := BirthdaysByMonth(nil)
	require.Len(t, result, 12)
	assert.Empty(t, result["3"])
}

func Test_percentileInterpolation(t *testing.T) {
	ages := []float64{1, 2, 3, 4}

	assert.InDelta(t, 2.5, Percentile(ages, 50), 1e-9)
	assert.InDelta(t, 3.25, Percentile(ages, 75), 1e-9)
	assert.InDelta(t, 3.97, Percentile(ages, 99), 1e-9)
	assert.InDelta(t, 1.0, Percentile(ages, 0), 1e-9)
	assert.InDelta(t, 4.0, Percentile(ages, 100), 1e-9)
}

func Test_percentileSingleValue(t *testing.T) {
	assert.Equal(t, 42.0, Percentile([]float64{42}, 99))
}

func Test_townAgePercentilesSortedTowns(t *testing.T) {
	now := time.Date(2019, time.August, 1, 0, 0, 0, 0, time.UTC)
	citizens := []model.Citizen{
		{CitizenID: 1, Town: "Omsk", BirthDate: model.NewDate(1989, time.July, 31)},
		{CitizenID: 2, Town: "Omsk", BirthDate: model.NewDate(1999, time.August, 2)},
		{CitizenID: 3, Town: "Keln", BirthDate: model.NewDate(1979, time.January, 1)},
	}

	result := TownAgePercentiles(citizens, now)

	require.Len(t, result, 2)
	assert.Equal(t, "Keln", result[0].Town)
	assert.Equal(t, "Omsk", result[1].Town)

	// ages in Omsk: 30 and 19 (birthday not yet reached)
	assert.InDelta(t, 24.5, result[1].P50, 1e-9)
	assert.InDelta(t, 27.25, result[1].P75, 1e-9)
	assert.InDelta(t, 29.89, result[1].P99, 1e-9)

	assert.Equal(t, 40.0, result[0].P50)
}

func Test_fullYears(t *testing.T) {
	now := time.Date(2019, time.August, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 30, FullYears(time.Date(1989, time.July, 31, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 30, FullYears(time.Date(1989, time.August, 1, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 29, FullYears(time.Date(1989, time.August, 2, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 0, FullYears(time.Date(2019, time.July, 1, 0, 0, 0, 0, time.UTC), now))
}
