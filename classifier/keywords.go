package classifier

import "github.com/pablobfonseca/go-photo-organizer/models"

// keywordList is one curated list of terms for a category. Strict lists only
// accept whole-word matches; loose lists also accept the term inside a longer
// word so concatenated filenames like "mydogphoto" still match.
type keywordList struct {
	name    string
	strict  bool
	subType func(matched string) string
	words   []string
}

func fixed(sub string) func(string) string { return func(string) string { return sub } }

func matchedWord(w string) string { return w }

// Word lists are kept free of short fragments that commonly appear inside
// unrelated words; those live in the strict lists.
var vehicleLists = []keywordList{
	{
		name:    "types",
		subType: matchedWord,
		words: []string{
			"car", "cars", "truck", "trucks", "motorcycle", "motorbike", "bike",
			"bicycle", "scooter", "train", "boat", "yacht", "airplane", "plane",
			"helicopter", "tractor", "jeep", "taxi", "vehicle", "automobile",
			"convertible", "sedan", "minivan",
		},
	},
	{
		name:    "short-types",
		strict:  true,
		subType: matchedWord,
		words:   []string{"bus", "van", "tram", "ship", "suv", "jet", "rv"},
	},
	{
		name:    "brands",
		subType: fixed("car"),
		words: []string{
			"toyota", "honda", "ford", "bmw", "audi", "mercedes", "benz", "porsche",
			"ferrari", "lamborghini", "tesla", "volkswagen", "nissan", "chevrolet",
			"chevy", "hyundai", "subaru", "mazda", "volvo", "jaguar", "ducati",
			"harley", "yamaha", "kawasaki", "peugeot", "renault",
		},
	},
	{
		name:    "related",
		subType: fixed(""),
		words:   []string{"driving", "highway", "garage", "roadtrip", "traffic", "racing", "motorway"},
	},
}

var petLists = []keywordList{
	{
		name:    "dog-breeds",
		subType: fixed("dog"),
		words: []string{
			"dog", "dogs", "puppy", "puppies", "labrador", "retriever", "poodle",
			"beagle", "bulldog", "terrier", "husky", "dachshund", "chihuahua", "corgi",
			"pug", "rottweiler", "shepherd", "collie", "spaniel", "doberman",
		},
	},
	{
		name:    "cat-breeds",
		subType: fixed("cat"),
		words: []string{
			"cat", "cats", "kitten", "kittens", "kitty", "siamese", "tabby",
			"ragdoll", "sphynx", "maine coon",
		},
	},
	{
		name:    "other-species",
		subType: matchedWord,
		words: []string{
			"hamster", "rabbit", "bunny", "parrot", "goldfish", "turtle", "tortoise",
			"guinea pig", "ferret", "hedgehog", "lizard", "gecko", "horse", "pony",
			"budgie", "canary",
		},
	},
	{
		name:    "related-terms",
		strict:  true,
		subType: fixed(""),
		words:   []string{"pet", "pets", "vet", "paws", "leash", "animal", "animals"},
	},
}

var natureLists = []keywordList{
	{
		name:    "landscape",
		subType: fixed("landscape"),
		words: []string{
			"landscape", "mountain", "mountains", "valley", "canyon", "desert",
			"forest", "woods", "jungle", "meadow", "volcano", "glacier", "cliff",
		},
	},
	{
		name:    "water",
		subType: fixed("water"),
		words:   []string{"beach", "ocean", "lake", "river", "waterfall", "coast", "island", "shore"},
	},
	{
		name:    "sky",
		subType: fixed("sky"),
		words:   []string{"sunset", "sunrise", "clouds", "rainbow", "aurora", "starry"},
	},
	{
		name:    "plants",
		subType: fixed("plants"),
		words:   []string{"flower", "flowers", "garden", "leaves", "blossom", "nature", "outdoors", "hiking", "camping", "wildlife"},
	},
	{
		name:    "short-terms",
		strict:  true,
		subType: fixed(""),
		words:   []string{"sky", "sea", "snow", "storm", "tree", "trees", "park", "hill", "hills", "leaf", "field", "rain"},
	},
}

var personLists = []keywordList{
	{
		name:    "related-terms",
		subType: fixed(""),
		words: []string{
			"person", "people", "portrait", "selfie", "family", "friends", "wedding",
			"birthday", "party", "baby", "babies", "children", "headshot", "crowd",
			"grandma", "grandpa", "husband", "graduation", "reunion",
		},
	},
	{
		name:    "short-terms",
		strict:  true,
		subType: fixed(""),
		words:   []string{"man", "men", "woman", "women", "boy", "girl", "kid", "kids", "mom", "dad", "wife", "face", "faces", "group", "team"},
	},
	{
		// Names are strict so a name fragment inside a longer word, like "ed"
		// in "mercedes", is never taken as a person.
		name:    "names",
		strict:  true,
		subType: fixed(""),
		words: []string{
			"al", "ed", "jo", "bo", "ben", "sam", "tom", "tim", "ann", "amy", "eva",
			"max", "leo", "mia", "zoe", "john", "mary", "james", "emma", "olivia",
			"liam", "noah", "sophia", "michael", "sarah", "david", "anna", "lisa",
			"mike", "kate", "alex", "chris", "daniel", "laura", "maria", "peter",
			"paul", "lucas", "julia", "ella",
		},
	},
}

// defaultRules lists every category in the canonical output order.
func defaultRules() []categoryRules {
	return []categoryRules{
		{category: models.CategoryVehicle, lists: vehicleLists},
		{category: models.CategoryPet, lists: petLists},
		{category: models.CategoryNature, lists: natureLists},
		{category: models.CategoryPerson, lists: personLists},
	}
}
