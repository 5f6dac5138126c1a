package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	ozzo "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/zhumanklv/yandex-academy-task/model"
)

// Error marks a rejected payload, as opposed to an internal failure.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func rejected(format string, args ...interface{}) *Error {
	return &Error{Reason: fmt.Sprintf(format, args...)}
}

const maxFieldLength = 256

// importPayload mirrors the wire format with pointer fields, so that absent
// and zero-valued fields can be told apart during validation.
type importPayload struct {
	Citizens []citizenPayload `json:"citizens"`
}

type citizenPayload struct {
	CitizenID *int64   `json:"citizen_id"`
	Town      *string  `json:"town"`
	Street    *string  `json:"street"`
	Building  *string  `json:"building"`
	Apartment *int64   `json:"apartment"`
	Name      *string  `json:"name"`
	BirthDate *string  `json:"birth_date"`
	Gender    *string  `json:"gender"`
	Relatives *[]int64 `json:"relatives"`
}

type patchPayload struct {
	Town      *string  `json:"town"`
	Street    *string  `json:"street"`
	Building  *string  `json:"building"`
	Apartment *int64   `json:"apartment"`
	Name      *string  `json:"name"`
	BirthDate *string  `json:"birth_date"`
	Gender    *string  `json:"gender"`
	Relatives *[]int64 `json:"relatives"`
}

type Validator struct {
	now func() time.Time
}

func New() *Validator {
	return NewWithClock(time.Now)
}

func NewWithClock(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// ValidateImport decodes and validates a whole import payload, returning the
// citizens ready for persistence.
func (v *Validator) ValidateImport(body []byte) ([]model.Citizen, error) {
	var payload importPayload
	if err := strictUnmarshal(body, &payload); err != nil {
		return nil, rejected("malformed import payload: %v", err)
	}

	if payload.Citizens == nil {
		return nil, rejected("citizens field is required")
	}

	citizens := make([]model.Citizen, 0, len(payload.Citizens))
	seen := make(map[int64]struct{}, len(payload.Citizens))

	for i, c := range payload.Citizens {
		if err := v.validateCitizenFields(c); err != nil {
			return nil, rejected("citizen #%d: %v", i, err)
		}

		if _, dup := seen[*c.CitizenID]; dup {
			return nil, rejected("duplicate citizen_id %d", *c.CitizenID)
		}
		seen[*c.CitizenID] = struct{}{}

		converted, err := toCitizen(c)
		if err != nil {
			return nil, rejected("citizen #%d: %v", i, err)
		}
		citizens = append(citizens, converted)
	}

	if err := checkRelativesConsistency(citizens); err != nil {
		return nil, err
	}

	return citizens, nil
}

// ValidatePatch decodes and validates a partial citizen update. Unknown
// fields, citizen_id among them, are rejected outright.
func (v *Validator) ValidatePatch(body []byte) (model.CitizenPatch, error) {
	var payload patchPayload
	if err := strictUnmarshal(body, &payload); err != nil {
		return model.CitizenPatch{}, rejected("malformed patch payload: %v", err)
	}

	// Skip rules for absent fields; present fields must carry usable values.
	if err := ozzo.ValidateStruct(&payload,
		ozzo.Field(&payload.Town, ozzo.Skip.When(payload.Town == nil), ozzo.Required, ozzo.RuneLength(1, maxFieldLength)),
		ozzo.Field(&payload.Street, ozzo.Skip.When(payload.Street == nil), ozzo.Required, ozzo.RuneLength(1, maxFieldLength)),
		ozzo.Field(&payload.Building, ozzo.Skip.When(payload.Building == nil), ozzo.Required, ozzo.RuneLength(1, maxFieldLength)),
		ozzo.Field(&payload.Apartment, ozzo.Skip.When(payload.Apartment == nil), ozzo.Min(int64(0))),
		ozzo.Field(&payload.Name, ozzo.Skip.When(payload.Name == nil), ozzo.Required, ozzo.RuneLength(1, maxFieldLength)),
		ozzo.Field(&payload.BirthDate, ozzo.Skip.When(payload.BirthDate == nil), ozzo.Required, ozzo.Date(model.DateLayout).Max(v.now())),
		ozzo.Field(&payload.Gender, ozzo.Skip.When(payload.Gender == nil), ozzo.Required, ozzo.In("male", "female")),
		ozzo.Field(&payload.Relatives, ozzo.Skip.When(payload.Relatives == nil), ozzo.Each(ozzo.Min(int64(0)))),
	); err != nil {
		return model.CitizenPatch{}, rejected("%v", err)
	}

	patch := model.CitizenPatch{
		Town:      payload.Town,
		Street:    payload.Street,
		Building:  payload.Building,
		Apartment: payload.Apartment,
		Name:      payload.Name,
		Gender:    payload.Gender,
		Relatives: payload.Relatives,
	}

	if payload.BirthDate != nil {
		date, err := model.ParseDate(*payload.BirthDate)
		if err != nil {
			return model.CitizenPatch{}, rejected("%v", err)
		}
		patch.BirthDate = &date
	}

	if patch.IsEmpty() {
		return model.CitizenPatch{}, rejected("patch must change at least one field")
	}

	return patch, nil
}

func (v *Validator) validateCitizenFields(c citizenPayload) error {
	return ozzo.ValidateStruct(&c,
		ozzo.Field(&c.CitizenID, ozzo.NotNil, ozzo.Min(int64(0))),
		ozzo.Field(&c.Town, ozzo.NotNil, ozzo.Required, ozzo.RuneLength(1, maxFieldLength)),
		ozzo.Field(&c.Street, ozzo.NotNil, ozzo.Required, ozzo.RuneLength(1, maxFieldLength)),
		ozzo.Field(&c.Building, ozzo.NotNil, ozzo.Required, ozzo.RuneLength(1, maxFieldLength)),
		ozzo.Field(&c.Apartment, ozzo.NotNil, ozzo.Min(int64(0))),
		ozzo.Field(&c.Name, ozzo.NotNil, ozzo.Required, ozzo.RuneLength(1, maxFieldLength)),
		ozzo.Field(&c.BirthDate, ozzo.NotNil, ozzo.Required, ozzo.Date(model.DateLayout).Max(v.now())),
		ozzo.Field(&c.Gender, ozzo.NotNil, ozzo.Required, ozzo.In("male", "female")),
		ozzo.Field(&c.Relatives, ozzo.NotNil, ozzo.Each(ozzo.Min(int64(0)))),
	)
}

func toCitizen(c citizenPayload) (model.Citizen, error) {
	birthDate, err := model.ParseDate(*c.BirthDate)
	if err != nil {
		return model.Citizen{}, err
	}

	return model.Citizen{
		CitizenID: *c.CitizenID,
		Town:      *c.Town,
		Street:    *c.Street,
		Building:  *c.Building,
		Apartment: *c.Apartment,
		Name:      *c.Name,
		BirthDate: birthDate,
		Gender:    *c.Gender,
		Relatives: append([]int64(nil), (*c.Relatives)...),
	}, nil
}

// checkRelativesConsistency requires every relative link to point at a known
// citizen and to be mutual. Self-links count as trivially mutual.
func checkRelativesConsistency(citizens []model.Citizen) error {
	links := make(map[int64]map[int64]struct{}, len(citizens))
	for _, c := range citizens {
		links[c.CitizenID] = toSet(c.Relatives)
	}

	for _, c := range citizens {
		for _, relID := range c.Relatives {
			relLinks, known := links[relID]
			if !known {
				return rejected("citizen %d refers to unknown relative %d", c.CitizenID, relID)
			}
			if _, mutual := relLinks[c.CitizenID]; !mutual {
				return rejected("relative link %d->%d is not mutual", c.CitizenID, relID)
			}
		}
	}

	return nil
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func strictUnmarshal(body []byte, out interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}
