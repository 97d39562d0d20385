package models

import "strings"

// Category is one of the fixed image categories a label source can propose.
type Category string

const (
	CategoryPerson  Category = "person"
	CategoryPet     Category = "pet"
	CategoryNature  Category = "nature"
	CategoryVehicle Category = "vehicle"
	CategoryOther   Category = "other"
)

// Categories lists the real categories in their canonical order.
var Categories = []Category{CategoryVehicle, CategoryPet, CategoryNature, CategoryPerson}

// ParseCategory normalizes s into a known Category.
func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryPerson:
		return CategoryPerson, true
	case CategoryPet:
		return CategoryPet, true
	case CategoryNature:
		return CategoryNature, true
	case CategoryVehicle:
		return CategoryVehicle, true
	case CategoryOther, "":
		return CategoryOther, true
	}
	return "", false
}

// CategoryMatch is a single category proposed for an image.
type CategoryMatch struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	SubType    string   `json:"subType,omitempty"`
}

// Descriptor tokens accumulated into AutoTags.Objects.
const (
	ObjectVehicle       = "vehicle"
	ObjectAnimal        = "animal"
	ObjectLandscape     = "landscape"
	ObjectOutdoor       = "outdoor"
	ObjectPortrait      = "portrait"
	ObjectUncategorized = "uncategorized"
)

// AutoTags is the canonical per-image tag record. The category flags are
// independent; an image may be in several categories at once.
type AutoTags struct {
	PersonID *string             `json:"person_id"`
	Nature   bool                `json:"nature"`
	Pets     bool                `json:"pets"`
	Vehicle  bool                `json:"vehicle"`
	Objects  []string            `json:"objects"`
	SubTypes map[Category]string `json:"sub_types,omitempty"`
}

// HasPerson reports whether a person identity was resolved.
func (t AutoTags) HasPerson() bool {
	return t.PersonID != nil && *t.PersonID != ""
}

// CategoryList flattens the flags into the matched categories, in canonical order.
func (t AutoTags) CategoryList() []Category {
	var out []Category
	if t.Vehicle {
		out = append(out, CategoryVehicle)
	}
	if t.Pets {
		out = append(out, CategoryPet)
	}
	if t.Nature {
		out = append(out, CategoryNature)
	}
	if t.HasPerson() {
		out = append(out, CategoryPerson)
	}
	return out
}

// Destination is a folder-like bucket key such as "pets", "people/person_0001"
// or "tags/holiday".
type Destination string

const (
	DestinationVehicles      Destination = "vehicles"
	DestinationPets          Destination = "pets"
	DestinationNature        Destination = "nature"
	DestinationUncategorized Destination = "uncategorized"

	PeoplePrefix = "people/"
	TagsPrefix   = "tags/"
)

// Collection names the logical collection a destination belongs to.
func (d Destination) Collection() string {
	s := string(d)
	switch {
	case d == DestinationVehicles:
		return string(CategoryVehicle)
	case d == DestinationPets:
		return string(CategoryPet)
	case d == DestinationNature:
		return string(CategoryNature)
	case strings.HasPrefix(s, PeoplePrefix):
		return string(CategoryPerson)
	case strings.HasPrefix(s, TagsPrefix):
		return "tag"
	default:
		return ObjectUncategorized
	}
}

func (d Destination) String() string { return string(d) }
