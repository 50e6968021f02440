package store

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Entity is a record that lives in a cached collection and is addressed by its slug.
type Entity interface {
	EntitySlug() string
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_.][a-z0-9]+)*$`)

// ValidSlug reports whether s is a lowercase, hyphenated identifier usable as a cache key segment.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// DuplicateSlugs returns the slugs that appear more than once in items, in first-seen order.
func DuplicateSlugs[T Entity](items []T) []string {
	seen := make(map[string]int, len(items))
	var dups []string
	for _, item := range items {
		slug := item.EntitySlug()
		seen[slug]++
		if seen[slug] == 2 {
			dups = append(dups, slug)
		}
	}
	return dups
}

// Player is a summary record shipped in the players collection.
type Player struct {
	Slug         string   `json:"slug"`
	Name         string   `json:"name"`
	Country      string   `json:"country,omitempty"`
	Club         string   `json:"club,omitempty"`
	CurrentIndex *float64 `json:"currentIndex,omitempty"`
	LowIndex     *float64 `json:"lowIndex,omitempty"`
	LastActivity string   `json:"lastActivity,omitempty"`
	RoundCount   *int     `json:"roundCount,omitempty"`
	// RecentRounds is the bounded embedded subset of the player's latest rounds.
	RecentRounds []*Round `json:"recentRounds,omitempty"`
}

func (p *Player) EntitySlug() string {
	return p.Slug
}

// Validate checks the fields every cached player must carry.
func (p *Player) Validate() error {
	if strings.TrimSpace(p.Slug) == "" {
		return errors.New("player slug is required")
	}
	if !ValidSlug(p.Slug) {
		return errors.Errorf("invalid player slug %q", p.Slug)
	}
	for i, r := range p.RecentRounds {
		if r == nil {
			return errors.Errorf("player %s: recent round %d is null", p.Slug, i)
		}
	}
	return nil
}

// Course is a record shipped in the courses collection.
type Course struct {
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Location string   `json:"location,omitempty"`
	Par      *int     `json:"par,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Slope    *int     `json:"slope,omitempty"`
	Holes    *int     `json:"holes,omitempty"`
}

func (c *Course) EntitySlug() string {
	return c.Slug
}

// Validate checks the fields every cached course must carry.
func (c *Course) Validate() error {
	if strings.TrimSpace(c.Slug) == "" {
		return errors.New("course slug is required")
	}
	if !ValidSlug(c.Slug) {
		return errors.Errorf("invalid course slug %q", c.Slug)
	}
	return nil
}

// Round is a single detail record. Field presence varies across historical data,
// so every field except Date is optional.
type Round struct {
	Date         string   `json:"date"`
	Course       string   `json:"course,omitempty"`
	CourseSlug   string   `json:"courseSlug,omitempty"`
	Tournament   string   `json:"tournament,omitempty"`
	Score        *int     `json:"score,omitempty"`
	Par          *int     `json:"par,omitempty"`
	ToPar        *int     `json:"toPar,omitempty"`
	Differential *float64 `json:"differential,omitempty"`
	Position     string   `json:"position,omitempty"`
	Holes        *int     `json:"holes,omitempty"`
}

// Time parses the round date. Rounds without a parseable date return the zero time.
func (r *Round) Time() time.Time {
	t, err := ParseTimestamp(r.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SortRounds orders rounds most recent first. Undated rounds sort last and keep their relative order.
func SortRounds(rounds []*Round) {
	sort.SliceStable(rounds, func(i, j int) bool {
		ti, tj := rounds[i].Time(), rounds[j].Time()
		if ti.IsZero() != tj.IsZero() {
			return !ti.IsZero()
		}
		return ti.After(tj)
	})
}

// RecentRounds returns a sorted copy of rounds truncated to limit. A non-positive limit keeps all rounds.
func RecentRounds(rounds []*Round, limit int) []*Round {
	list := make([]*Round, 0, len(rounds))
	for _, r := range rounds {
		if r != nil {
			list = append(list, r)
		}
	}
	SortRounds(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("invalid timestamp %q", value)
}
