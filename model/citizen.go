package model

// Citizen is a single record within an imported dataset. Identity is the
// (import_id, citizen_id) pair; the import_id lives on the storage document,
// not here.
type Citizen struct {
	CitizenID int64   `json:"citizen_id" bson:"citizen_id"`
	Town      string  `json:"town" bson:"town"`
	Street    string  `json:"street" bson:"street"`
	Building  string  `json:"building" bson:"building"`
	Apartment int64   `json:"apartment" bson:"apartment"`
	Name      string  `json:"name" bson:"name"`
	BirthDate Date    `json:"birth_date" bson:"birth_date"`
	Gender    string  `json:"gender" bson:"gender"`
	Relatives []int64 `json:"relatives" bson:"relatives"`
}

// CitizenPatch carries a partial update. Nil fields are left untouched.
// citizen_id is deliberately absent: record identity is immutable.
type CitizenPatch struct {
	Town      *string  `json:"town"`
	Street    *string  `json:"street"`
	Building  *string  `json:"building"`
	Apartment *int64   `json:"apartment"`
	Name      *string  `json:"name"`
	BirthDate *Date    `json:"birth_date"`
	Gender    *string  `json:"gender"`
	Relatives *[]int64 `json:"relatives"`
}

func (p CitizenPatch) IsEmpty() bool {
	return p.Town == nil && p.Street == nil && p.Building == nil &&
		p.Apartment == nil && p.Name == nil && p.BirthDate == nil &&
		p.Gender == nil && p.Relatives == nil
}

// Apply overlays the patch onto c.
func (p CitizenPatch) Apply(c *Citizen) {
	if p.Town != nil {
		c.Town = *p.Town
	}
	if p.Street != nil {
		c.Street = *p.Street
	}
	if p.Building != nil {
		c.Building = *p.Building
	}
	if p.Apartment != nil {
		c.Apartment = *p.Apartment
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.BirthDate != nil {
		c.BirthDate = *p.BirthDate
	}
	if p.Gender != nil {
		c.Gender = *p.Gender
	}
	if p.Relatives != nil {
		c.Relatives = append([]int64(nil), (*p.Relatives)...)
	}
}
