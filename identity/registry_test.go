package identity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pablobfonseca/go-photo-organizer/apperrors"
	"github.com/pablobfonseca/go-photo-organizer/models"
)

// axis returns a 16-value embedding whose signature points along dimension d.
func axis(d int) []float64 {
	e := make([]float64, 16)
	e[2*d] = 1
	e[2*d+1] = 1
	return e
}

func TestResolve_MintsInOrderAndReuses(t *testing.T) {
	r := NewRegistry(0)

	id1, created, err := r.Resolve(axis(0))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "person_0001", id1)

	id2, created, err := r.Resolve(axis(1))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "person_0002", id2)

	// A scaled copy has similarity 1 with the first identity.
	scaled := axis(0)
	for i := range scaled {
		scaled[i] *= 3
	}
	again, created, err := r.Resolve(scaled)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, again)

	assert.Equal(t, []string{"person_0001", "person_0002"}, r.List())
}

func TestResolve_ThresholdIsStrict(t *testing.T) {
	r := NewRegistry(0.85)
	_, _, err := r.Resolve(axis(0))
	require.NoError(t, err)

	// Signature (1, 1, 0, ...) has cosine 0.7071 with (1, 0, ...): below threshold.
	mixed := make([]float64, 16)
	mixed[0], mixed[1], mixed[2], mixed[3] = 1, 1, 1, 1
	id, created, err := r.Resolve(mixed)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "person_0002", id)
}

func TestResolve_FirstMatchInInsertionOrderWins(t *testing.T) {
	// Both identities are similar enough to the probe; the older one wins.
	a := make([]float64, 16)
	a[0], a[1], a[2], a[3] = 1, 1, 0.3, 0.3
	b := make([]float64, 16)
	b[0], b[1], b[2], b[3] = 0.3, 0.3, 1, 1
	probe := make([]float64, 16)
	for i := 0; i < 4; i++ {
		probe[i] = 1
	}

	r := NewRegistry(0.85)
	_, _, err := r.Resolve(a)
	require.NoError(t, err)
	_, created, err := r.Resolve(b)
	require.NoError(t, err)
	// a and b are only ~0.55 similar to each other.
	require.True(t, created)

	id, _, err := r.Resolve(probe)
	require.NoError(t, err)
	assert.Equal(t, "person_0001", id)

	// The reverse insertion history groups the probe with b instead.
	r2 := NewRegistry(0.85)
	idB, _, _ := r2.Resolve(b)
	_, _, _ = r2.Resolve(a)
	id, _, err = r2.Resolve(probe)
	require.NoError(t, err)
	assert.Equal(t, idB, id)
}

func TestResolve_InvalidEmbedding(t *testing.T) {
	r := NewRegistry(0)
	_, _, err := r.Resolve([]float64{1, 2, 3})
	assert.ErrorIs(t, err, apperrors.ErrInvalidEmbedding)
	assert.Zero(t, r.Len())
}

func TestResolve_ConcurrentSameFaceMintsOnce(t *testing.T) {
	r := NewRegistry(0)
	var wg sync.WaitGroup
	ids := make([]string, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _, err := r.Resolve(axis(4))
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
	for _, id := range ids {
		assert.Equal(t, "person_0001", id)
	}
}

func TestResetAndRestore(t *testing.T) {
	r := NewRegistry(0)
	_, _, _ = r.Resolve(axis(0))
	_, _, _ = r.Resolve(axis(1))

	saved, ok := r.Lookup("person_0002")
	require.True(t, ok)

	r.Reset()
	assert.Empty(t, r.List())

	require.NoError(t, r.Restore([]models.PersonIdentity{
		{PersonID: "person_0001", Signature: []float64{1, 0, 0, 0, 0, 0, 0, 0}},
		saved,
	}))
	assert.Equal(t, []string{"person_0001", "person_0002"}, r.List())

	id, created, err := r.Resolve(axis(1))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "person_0002", id)

	id, created, err = r.Resolve(axis(5))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "person_0003", id)

	err = r.Restore([]models.PersonIdentity{{PersonID: "person_0001", Signature: []float64{1}}})
	assert.Error(t, err)
}

func TestRestore_GapKeepsIDsUnique(t *testing.T) {
	r := NewRegistry(0)
	require.NoError(t, r.Restore([]models.PersonIdentity{
		{PersonID: "person_0001", Signature: []float64{1, 0, 0, 0, 0, 0, 0, 0}},
		{PersonID: "person_0003", Signature: []float64{0, 1, 0, 0, 0, 0, 0, 0}},
	}))

	id, created, err := r.Resolve(axis(5))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "person_0004", id)
	assert.Equal(t, []string{"person_0001", "person_0003", "person_0004"}, r.List())

	r.Reset()
	id, _, err = r.Resolve(axis(5))
	require.NoError(t, err)
	assert.Equal(t, "person_0001", id)
}

func TestRestore_RejectsDuplicateIDs(t *testing.T) {
	r := NewRegistry(0)
	sig := []float64{1, 0, 0, 0, 0, 0, 0, 0}
	err := r.Restore([]models.PersonIdentity{
		{PersonID: "person_0001", Signature: sig},
		{PersonID: "person_0001", Signature: sig},
	})
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := NewRegistry(0)
	_, _, _ = r.Resolve(axis(0))
	_, _, _ = r.Resolve(axis(1))
	snap := r.Snapshot()

	r.Reset()
	require.NoError(t, r.Restore(snap))
	assert.Equal(t, []string{"person_0001", "person_0002"}, r.List())

	id, _, err := r.Resolve(axis(2))
	require.NoError(t, err)
	assert.Equal(t, "person_0003", id)
}

func TestParsePersonID(t *testing.T) {
	n, ok := ParsePersonID("person_0042")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	for _, bad := range []string{"", "person_", "person_abc", "people_0001", "person_0000"} {
		_, ok := ParsePersonID(bad)
		assert.False(t, ok, bad)
	}
}
