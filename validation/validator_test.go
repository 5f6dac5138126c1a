package validation

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhumanklv/yandex-academy-task/model"
)

func fixedClock() time.Time {
	return time.Date(2019, time.August, 1, 12, 0, 0, 0, time.UTC)
}

func validCitizenJson(id int, relatives string) string {
	return fmt.Sprintf(`{
		"citizen_id": %d,
		"town": "Moskva",
		"street": "Lva Tolstogo",
		"building": "16k7str5",
		"apartment": 7,
		"name": "Ivanov Ivan Ivanovich",
		"birth_date": "26.12.1986",
		"gender": "male",
		"relatives": [%s]
	}`, id, relatives)
}

func Test_validateImportOk(t *testing.T) {
	v := NewWithClock(fixedClock)

	body := fmt.Sprintf(`{"citizens":[%s,%s]}`,
		validCitizenJson(1, "2"), validCitizenJson(2, "1"))

	citizens, err := v.ValidateImport([]byte(body))
	require.NoError(t, err)
	require.Len(t, citizens, 2)

	assert.Equal(t, int64(1), citizens[0].CitizenID)
	assert.Equal(t, "Moskva", citizens[0].Town)
	assert.Equal(t, model.NewDate(1986, time.December, 26), citizens[0].BirthDate)
	assert.Equal(t, []int64{2}, citizens[0].Relatives)
}

func Test_validateImportSelfRelative(t *testing.T) {
	v := NewWithClock(fixedClock)

	body := fmt.Sprintf(`{"citizens":[%s]}`, validCitizenJson(1, "1"))

	citizens, err := v.ValidateImport([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, citizens[0].Relatives)
}

func Test_validateImportRejections(t *testing.T) {
	v := NewWithClock(fixedClock)

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "not json", body: `[`, want: "malformed"},
		{name: "missing citizens", body: `{}`, want: "citizens field is required"},
		{name: "unknown top-level field", body: `{"citizens":[],"extra":1}`, want: "malformed"},
		{
			name: "unknown citizen field",
			body: `{"citizens":[{"citizen_id":1,"unexpected":true}]}`,
			want: "malformed",
		},
		{
			name: "missing required field",
			body: `{"citizens":[{"citizen_id":1}]}`,
			want: "town",
		},
		{
			name: "negative citizen_id",
			body: fmt.Sprintf(`{"citizens":[%s]}`, strings.Replace(validCitizenJson(1, ""), `"citizen_id": 1`, `"citizen_id": -1`, 1)),
			want: "citizen_id",
		},
		{
			name: "bad gender",
			body: fmt.Sprintf(`{"citizens":[%s]}`, strings.Replace(validCitizenJson(1, ""), `"male"`, `"other"`, 1)),
			want: "gender",
		},
		{
			name: "impossible date",
			body: fmt.Sprintf(`{"citizens":[%s]}`, strings.Replace(validCitizenJson(1, ""), "26.12.1986", "31.02.1986", 1)),
			want: "birth_date",
		},
		{
			name: "future date",
			body: fmt.Sprintf(`{"citizens":[%s]}`, strings.Replace(validCitizenJson(1, ""), "26.12.1986", "26.12.2086", 1)),
			want: "birth_date",
		},
		{
			name: "duplicate citizen_id",
			body: fmt.Sprintf(`{"citizens":[%s,%s]}`, validCitizenJson(3, ""), validCitizenJson(3, "")),
			want: "duplicate citizen_id 3",
		},
		{
			name: "unknown relative",
			body: fmt.Sprintf(`{"citizens":[%s]}`, validCitizenJson(1, "99")),
			want: "unknown relative 99",
		},
		{
			name: "one-sided relative",
			body: fmt.Sprintf(`{"citizens":[%s,%s]}`, validCitizenJson(1, "2"), validCitizenJson(2, "")),
			want: "not mutual",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateImport([]byte(tt.body))
			require.Error(t, err)

			var vErr *Error
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func Test_validatePatchOk(t *testing.T) {
	v := NewWithClock(fixedClock)

	patch, err := v.ValidatePatch([]byte(`{"town":"Keln","relatives":[1,2],"birth_date":"17.04.1997"}`))
	require.NoError(t, err)

	require.NotNil(t, patch.Town)
	assert.Equal(t, "Keln", *patch.Town)
	require.NotNil(t, patch.Relatives)
	assert.Equal(t, []int64{1, 2}, *patch.Relatives)
	require.NotNil(t, patch.BirthDate)
	assert.Equal(t, model.NewDate(1997, time.April, 17), *patch.BirthDate)
	assert.Nil(t, patch.Gender)
}

func Test_validatePatchRejections(t *testing.T) {
	v := NewWithClock(fixedClock)

	tests := []struct {
		name string
		body string
	}{
		{name: "empty patch", body: `{}`},
		{name: "citizen_id not patchable", body: `{"citizen_id": 5}`},
		{name: "unknown field", body: `{"towns": "Keln"}`},
		{name: "null field only", body: `{"town": null}`},
		{name: "blank town", body: `{"town": ""}`},
		{name: "negative apartment", body: `{"apartment": -2}`},
		{name: "future birth_date", body: `{"birth_date": "01.01.2222"}`},
		{name: "bad gender", body: `{"gender": "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidatePatch([]byte(tt.body))
			require.Error(t, err)

			var vErr *Error
			assert.ErrorAs(t, err, &vErr)
		})
	}
}
