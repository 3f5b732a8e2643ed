package inventory

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"
)

// Release frees a held lock. It is safe to call more than once.
type Release func()

// Locker serializes stock writers per product.
type Locker interface {
	Acquire(ctx context.Context, productID uuid.UUID) (Release, error)
}

// LockProducts acquires locks for every distinct product in ascending id
// order. On failure the locks already taken are released before returning.
// The returned Release frees them in reverse order.
func LockProducts(ctx context.Context, locker Locker, productIDs []uuid.UUID) (Release, error) {
	ids := SortedUnique(productIDs)
	held := make([]Release, 0, len(ids))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, id := range ids {
		release, err := locker.Acquire(ctx, id)
		if err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, release)
	}
	return releaseAll, nil
}

// SortedUnique returns the distinct ids in ascending byte order.
func SortedUnique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
