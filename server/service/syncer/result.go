package syncer

import (
	"github.com/pkg/errors"

	"github.com/hrygo/fairway/store"
)

// Outcome is the tri-state result of a sync operation.
type Outcome int

const (
	// Unavailable means no cache exists and the fetch failed.
	Unavailable Outcome = iota
	// StaleOK means no new data was applied; the previous cache is still valid.
	StaleOK
	// Fresh means new data was applied.
	Fresh
)

func (o Outcome) String() string {
	switch o {
	case Fresh:
		return "fresh"
	case StaleOK:
		return "stale_ok"
	default:
		return "unavailable"
	}
}

// MarshalText renders the outcome in log and API output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "fresh":
		*o = Fresh
	case "stale_ok":
		*o = StaleOK
	case "unavailable":
		*o = Unavailable
	default:
		return errors.Errorf("unknown outcome %q", text)
	}
	return nil
}

// Result reports what one fetch-validate-commit run did.
type Result struct {
	Outcome Outcome
	// Fetched is true when the network returned a payload that decoded cleanly.
	Fetched bool
	// Header describes the payload the slot holds after the run, nil when the slot is empty.
	Header *store.Header
	// Err is the *errors.SyncError explaining why nothing was committed, if a step failed.
	// A rejected older or equal payload is not an error.
	Err error
}

// HasData reports whether the caller can serve cached or fresh data.
func (r *Result) HasData() bool {
	return r != nil && r.Outcome != Unavailable
}
