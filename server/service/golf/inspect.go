package golf

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/hrygo/fairway/server/service/history"
)

// InspectOptions bounds a round schema inspection. Zero fields take the defaults.
type InspectOptions struct {
	MaxFiles      int
	RoundsPerFile int
	TopKeys       int
	Samples       int
	TopShapes     int
}

// DefaultInspectOptions samples 200 round sets, 25 rounds each.
func DefaultInspectOptions() *InspectOptions {
	return &InspectOptions{
		MaxFiles:      200,
		RoundsPerFile: 25,
		TopKeys:       40,
		Samples:       5,
		TopShapes:     5,
	}
}

func (o *InspectOptions) withDefaults() *InspectOptions {
	d := DefaultInspectOptions()
	if o == nil {
		return d
	}
	merged := *o
	if merged.MaxFiles <= 0 {
		merged.MaxFiles = d.MaxFiles
	}
	if merged.RoundsPerFile <= 0 {
		merged.RoundsPerFile = d.RoundsPerFile
	}
	if merged.TopKeys <= 0 {
		merged.TopKeys = d.TopKeys
	}
	if merged.Samples <= 0 {
		merged.Samples = d.Samples
	}
	if merged.TopShapes <= 0 {
		merged.TopShapes = d.TopShapes
	}
	return &merged
}

// KeyUsage counts one round field across the sample.
type KeyUsage struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	// Samples are raw JSON values in first-seen order.
	Samples []string `json:"samples"`
}

// Shape is one distinct set of round fields.
type Shape struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

// Candidate groups heuristic guesses for the fields the history views rely on.
type Candidate struct {
	Group string   `json:"group"`
	Keys  []string `json:"keys"`
}

// RoundsReport summarizes the field layout of cached round sets.
type RoundsReport struct {
	Files      int          `json:"files"`
	Rounds     int          `json:"rounds"`
	Keys       []*KeyUsage  `json:"keys"`
	Candidates []*Candidate `json:"candidates"`
	Shapes     []*Shape     `json:"shapes"`
}

var candidateGroups = []struct {
	group string
	match func(key string) bool
}{
	{"date", func(k string) bool { return strings.Contains(k, "date") || strings.Contains(k, "time") }},
	{"score", func(k string) bool {
		switch k {
		case "r1", "r2", "r3", "r4":
			return true
		}
		return strings.Contains(k, "score") || strings.Contains(k, "strokes")
	}},
	{"course", func(k string) bool {
		return strings.Contains(k, "course") || strings.Contains(k, "club") || strings.Contains(k, "venue")
	}},
	{"tournament", func(k string) bool { return strings.Contains(k, "tournament") || strings.Contains(k, "event") }},
}

// roundsOf extracts the round array from a cached round set: the envelope object with
// rounds, data or items, or a bare array.
func roundsOf(data []byte) []gjson.Result {
	if !gjson.ValidBytes(data) {
		return nil
	}
	root := gjson.ParseBytes(data)
	if root.IsObject() {
		for _, key := range []string{"rounds", "data", "items"} {
			if r := root.Get(key); r.IsArray() && len(r.Array()) > 0 {
				return r.Array()
			}
		}
		return nil
	}
	if root.IsArray() {
		return root.Array()
	}
	return nil
}

func (s *service) InspectRounds(opts *InspectOptions) (*RoundsReport, error) {
	opts = opts.withDefaults()

	keys, err := s.store.SlotKeys(history.KeyPrefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.New("no cached round sets to inspect")
	}
	if len(keys) > opts.MaxFiles {
		keys = keys[:opts.MaxFiles]
	}

	report := &RoundsReport{}
	usage := map[string]*KeyUsage{}
	var order []string
	shapes := map[string]*Shape{}
	var shapeOrder []string

	for _, key := range keys {
		slot, err := s.store.Slot(key)
		if err != nil {
			return nil, err
		}
		data, err := slot.Read()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", key)
		}
		report.Files++

		rounds := roundsOf(data)
		if len(rounds) > opts.RoundsPerFile {
			rounds = rounds[:opts.RoundsPerFile]
		}
		for _, round := range rounds {
			if !round.IsObject() {
				continue
			}
			report.Rounds++

			var fields []string
			round.ForEach(func(k, v gjson.Result) bool {
				field := k.String()
				fields = append(fields, field)
				u, ok := usage[field]
				if !ok {
					u = &KeyUsage{Key: field, Samples: []string{}}
					usage[field] = u
					order = append(order, field)
				}
				u.Count++
				if len(u.Samples) < opts.Samples {
					u.Samples = append(u.Samples, v.Raw)
				}
				return true
			})

			sort.Strings(fields)
			id := strings.Join(fields, "\x00")
			shape, ok := shapes[id]
			if !ok {
				shape = &Shape{Keys: fields}
				shapes[id] = shape
				shapeOrder = append(shapeOrder, id)
			}
			shape.Count++
		}
	}

	for _, field := range order {
		report.Keys = append(report.Keys, usage[field])
	}
	sort.SliceStable(report.Keys, func(i, j int) bool { return report.Keys[i].Count > report.Keys[j].Count })
	if len(report.Keys) > opts.TopKeys {
		report.Keys = report.Keys[:opts.TopKeys]
	}

	for _, g := range candidateGroups {
		candidate := &Candidate{Group: g.group, Keys: []string{}}
		for _, field := range order {
			if g.match(strings.ToLower(field)) {
				candidate.Keys = append(candidate.Keys, field)
			}
		}
		report.Candidates = append(report.Candidates, candidate)
	}

	for _, id := range shapeOrder {
		report.Shapes = append(report.Shapes, shapes[id])
	}
	sort.SliceStable(report.Shapes, func(i, j int) bool { return report.Shapes[i].Count > report.Shapes[j].Count })
	if len(report.Shapes) > opts.TopShapes {
		report.Shapes = report.Shapes[:opts.TopShapes]
	}
	return report, nil
}
