package classification

import (
	"strconv"
	"unicode/utf16"

	"github.com/pablobfonseca/go-photo-organizer/models"
)

// BucketBoundaries split abs(hash) % 100 into the four fallback buckets.
var BucketBoundaries = [3]int64{25, 50, 75}

// bucketCategories is the category of each bucket, lowest first.
var bucketCategories = [4]models.Category{
	models.CategoryNature,
	models.CategoryPet,
	models.CategoryPerson,
	models.CategoryVehicle,
}

// hashEmbeddingValues is how many leading embedding values feed the hash.
const hashEmbeddingValues = 3

// stringHash is the classic 31-multiplier string hash over UTF-16 code
// units, kept in a signed 32-bit integer and wrapping on overflow. Characters
// outside the BMP count as two surrogate units.
func stringHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(u)
	}
	return h
}

// HashBucket deterministically picks a category from filename and the first
// few embedding values. The same inputs always give the same category.
func HashBucket(filename string, embedding []float64) models.Category {
	key := filename
	for i := 0; i < len(embedding) && i < hashEmbeddingValues; i++ {
		key += strconv.FormatFloat(embedding[i], 'f', 6, 64)
	}

	v := int64(stringHash(key))
	if v < 0 {
		v = -v
	}
	bucket := v % 100

	for i, boundary := range BucketBoundaries {
		if bucket < boundary {
			return bucketCategories[i]
		}
	}
	return bucketCategories[len(bucketCategories)-1]
}
