package syncer

import (
	"github.com/hrygo/fairway/store"
)

// Accept applies the monotonic reconciliation rule: a candidate replaces the cached envelope
// only when nothing is cached or the candidate is strictly newer. Ties keep the cache.
func Accept(prior *store.Header, candidate store.Header) bool {
	return prior == nil || candidate.UpdatedAt.After(prior.UpdatedAt)
}
