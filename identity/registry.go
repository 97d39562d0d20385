// Package identity groups person images into stable identities by comparing
// embedding signatures.
package identity

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pablobfonseca/go-photo-organizer/models"
	"github.com/pablobfonseca/go-photo-organizer/signature"
)

// DefaultThreshold is the similarity an embedding must exceed to join an
// existing identity.
const DefaultThreshold = 0.85

type entry struct {
	personID string
	sig      signature.Signature
}

// Registry maps person ids to signatures. Resolve scans identities in the
// order they were first seen, so groupings depend on insertion history.
type Registry struct {
	mu        sync.Mutex
	threshold float64
	entries   []entry
	// next is the sequence number of the last minted id; it never goes
	// backwards except on Reset.
	next int
}

// NewRegistry creates an empty registry. A non-positive threshold selects
// DefaultThreshold.
func NewRegistry(threshold float64) *Registry {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Registry{threshold: threshold}
}

const personPrefix = "person_"

// FormatPersonID renders the n-th identity id, e.g. person_0001.
func FormatPersonID(n int) string {
	return fmt.Sprintf("%s%04d", personPrefix, n)
}

// ParsePersonID returns the sequence number of an id made by FormatPersonID.
func ParsePersonID(personID string) (int, bool) {
	digits, ok := strings.CutPrefix(personID, personPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Resolve returns the id of the first identity whose signature is more
// similar than the threshold, or mints a new one. created reports whether a
// new identity was minted. The scan and insert happen under one lock.
func (r *Registry) Resolve(embedding []float64) (personID string, created bool, err error) {
	sig, err := signature.Compute(embedding)
	if err != nil {
		return "", false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if signature.Similarity(e.sig, sig) > r.threshold {
			return e.personID, false, nil
		}
	}

	r.next++
	id := FormatPersonID(r.next)
	r.entries = append(r.entries, entry{personID: id, sig: sig})
	return id, true, nil
}

// Lookup returns the stored identity for personID.
func (r *Registry) Lookup(personID string) (models.PersonIdentity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.personID == personID {
			return models.PersonIdentity{PersonID: e.personID, Signature: append([]float64(nil), e.sig...)}, true
		}
	}
	return models.PersonIdentity{}, false
}

// List returns all person ids in insertion order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.personID
	}
	return ids
}

// Len returns the number of known identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset forgets every identity. Only bulk reprocessing calls it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.next = 0
}

// Snapshot returns a copy of the table in insertion order, suitable for
// Restore.
func (r *Registry) Snapshot() []models.PersonIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.PersonIdentity, len(r.entries))
	for i, e := range r.entries {
		out[i] = models.PersonIdentity{PersonID: e.personID, Signature: append([]float64(nil), e.sig...)}
	}
	return out
}

// Restore replaces the table with previously persisted identities, kept in
// the given order. Signatures of the wrong length and duplicate ids are
// rejected. New ids continue after the highest restored one, so a gap in
// the persisted table never leads to an id being minted twice.
func (r *Registry) Restore(identities []models.PersonIdentity) error {
	entries := make([]entry, 0, len(identities))
	seen := make(map[string]bool, len(identities))
	next := len(identities)
	for _, id := range identities {
		if len(id.Signature) != signature.Dimensions {
			return fmt.Errorf("restore %s: signature has %d dimensions, want %d", id.PersonID, len(id.Signature), signature.Dimensions)
		}
		if seen[id.PersonID] {
			return fmt.Errorf("restore %s: duplicate person id", id.PersonID)
		}
		seen[id.PersonID] = true
		if n, ok := ParsePersonID(id.PersonID); ok && n > next {
			next = n
		}
		entries = append(entries, entry{personID: id.PersonID, sig: append(signature.Signature(nil), id.Signature...)})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
	r.next = next
	return nil
}
