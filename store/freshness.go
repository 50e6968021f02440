package store

// FreshnessRecord remembers the calendar day a resource key was last refreshed successfully.
type FreshnessRecord struct {
	Key string
	// Day is the local calendar day marker, formatted as YYYY-MM-DD.
	Day       string
	UpdatedTs int64
}

// FindFreshnessRecord specifies the conditions for finding freshness records.
type FindFreshnessRecord struct {
	Key *string
}

// DeleteFreshnessRecord specifies the records to delete. A nil Key deletes every record.
type DeleteFreshnessRecord struct {
	Key *string
}
