package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pablobfonseca/go-photo-organizer/models"
)

func categoriesOf(matches []models.CategoryMatch) []models.Category {
	out := make([]models.Category, len(matches))
	for i, m := range matches {
		out[i] = m.Category
	}
	return out
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "my dog in the car jpg", Normalize("My_Dog-in.the_CAR.jpg"))
}

func TestClassify(t *testing.T) {
	k := NewKeywordClassifier()

	tests := []struct {
		filename string
		want     []models.Category
	}{
		{"my_dog_in_the_car.jpg", []models.Category{models.CategoryVehicle, models.CategoryPet}},
		{"mercedes_benz.jpg", []models.Category{models.CategoryVehicle}},
		{"family_birthday_party.jpg", []models.Category{models.CategoryPerson}},
		{"sunset-beach.png", []models.Category{models.CategoryNature}},
		{"mydogphoto.jpg", []models.Category{models.CategoryPet}},
		{"emma_with_kitten_on_mountain.jpg", []models.Category{models.CategoryPet, models.CategoryNature, models.CategoryPerson}},
		{"IMG_0001.jpg", []models.Category{models.CategoryOther}},
		{"DSC_1234.JPG", []models.Category{models.CategoryOther}},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, categoriesOf(k.Classify(tt.filename)))
		})
	}
}

func TestClassify_StrictNamesDoNotMatchInsideWords(t *testing.T) {
	k := NewKeywordClassifier()

	matches := k.Classify("mercedes_benz.jpg")
	for _, m := range matches {
		assert.NotEqual(t, models.CategoryPerson, m.Category)
	}

	// The same name fragment on its own is a person.
	assert.Equal(t, []models.Category{models.CategoryPerson}, categoriesOf(k.Classify("ed_at_home.jpg")))
}

func TestClassify_StrictTermsNeedWordBoundary(t *testing.T) {
	k := NewKeywordClassifier()

	// "park" inside "parking" is not nature, but "parking" is not a vehicle keyword either.
	assert.Equal(t, []models.Category{models.CategoryOther}, categoriesOf(k.Classify("parkinglot_0042.jpg")))
	assert.Equal(t, []models.Category{models.CategoryNature}, categoriesOf(k.Classify("walk_in_the_park.jpg")))
}

func TestClassify_SubTypesAndConfidence(t *testing.T) {
	k := NewKeywordClassifier()

	matches := k.Classify("labrador_and_tesla.jpg")
	assert.Equal(t, []models.CategoryMatch{
		{Category: models.CategoryVehicle, Confidence: 1.0, SubType: "car"},
		{Category: models.CategoryPet, Confidence: 1.0, SubType: "dog"},
	}, matches)

	matches = k.Classify("pet_rabbit.jpg")
	assert.Equal(t, "rabbit", matches[0].SubType)
}
