package store

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ErrMalformedPayload is wrapped by every codec decode failure.
var ErrMalformedPayload = errors.New("malformed payload")

// Header is the reconciliation-relevant part of an envelope.
type Header struct {
	Version   int
	UpdatedAt time.Time
	// Count is the declared item count, -1 when the payload omits it.
	Count int
	// ItemCount is the number of decoded items, -1 when only the header was read.
	ItemCount int
	Slug      string
}

// CountMatches reports whether the declared count agrees with the decoded items.
// It is true whenever either side is unknown.
func (h Header) CountMatches() bool {
	return h.Count < 0 || h.ItemCount < 0 || h.Count == h.ItemCount
}

// Envelope wraps a collection or a per-player round set.
type Envelope[T any] struct {
	Header
	Items []T
}

// CountMatches reports whether the declared count agrees with the item list.
func (e *Envelope[T]) CountMatches() bool {
	return e.Count < 0 || e.Count == len(e.Items)
}

// Codec decodes and encodes one envelope shape.
type Codec[T any] struct {
	// ItemsKey is the field holding the item array.
	ItemsKey string
	// ItemsAliases are legacy array fields accepted on decode, in precedence order.
	ItemsAliases []string
	// CountKey is the field holding the declared item count.
	CountKey string
	// WithSlug marks payloads that name the owning entity with a top-level slug.
	WithSlug bool
}

var (
	// PlayersCodec handles players.json.
	PlayersCodec = &Codec[*Player]{ItemsKey: "players", CountKey: "count"}
	// CoursesCodec handles courses.json.
	CoursesCodec = &Codec[*Course]{ItemsKey: "courses", CountKey: "count"}
	// RoundsCodec handles rounds/<slug>.json.
	RoundsCodec = &Codec[*Round]{ItemsKey: "rounds", ItemsAliases: []string{"data", "items"}, CountKey: "roundCount", WithSlug: true}
)

type validator interface {
	Validate() error
}

func malformed(format string, args ...any) error {
	return errors.Wrapf(ErrMalformedPayload, format, args...)
}

// Header decodes only the envelope header. It is used for payloads that have already been validated.
func (c *Codec[T]) Header(data []byte) (Header, error) {
	if !gjson.ValidBytes(data) {
		return Header{}, malformed("invalid json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Header{}, malformed("payload is not an object")
	}

	header := Header{Count: -1, ItemCount: -1}

	version := root.Get("version")
	if !version.Exists() {
		return Header{}, malformed("version is required")
	}
	v, ok := integer(version)
	if !ok {
		return Header{}, malformed("version must be an integer, got %s", version.Raw)
	}
	header.Version = v

	updatedAt := root.Get("updatedAt")
	if updatedAt.Type != gjson.String {
		return Header{}, malformed("updatedAt must be a string")
	}
	ts, err := ParseTimestamp(updatedAt.Str)
	if err != nil {
		return Header{}, errors.Wrap(ErrMalformedPayload, err.Error())
	}
	header.UpdatedAt = ts

	if count := root.Get(c.CountKey); count.Exists() && count.Type != gjson.Null {
		n, ok := integer(count)
		if !ok || n < 0 {
			return Header{}, malformed("%s must be a non-negative integer, got %s", c.CountKey, count.Raw)
		}
		header.Count = n
	}

	if c.WithSlug {
		if slug := root.Get("slug"); slug.Exists() && slug.Type != gjson.Null {
			if slug.Type != gjson.String {
				return Header{}, malformed("slug must be a string")
			}
			header.Slug = slug.Str
		}
	}

	return header, nil
}

// Decode fully decodes and validates data. Any invalid or mis-typed field fails the whole decode.
func (c *Codec[T]) Decode(data []byte) (*Envelope[T], error) {
	header, err := c.Header(data)
	if err != nil {
		return nil, err
	}

	itemsKey, raw, err := c.items(gjson.ParseBytes(data))
	if err != nil {
		return nil, err
	}

	var items []T
	if err := json.Unmarshal([]byte(raw.Raw), &items); err != nil {
		return nil, errors.Wrapf(ErrMalformedPayload, "decode %s: %v", itemsKey, err)
	}
	for i, item := range items {
		if isNil(item) {
			return nil, malformed("%s[%d] is null", itemsKey, i)
		}
		if v, ok := any(item).(validator); ok {
			if err := v.Validate(); err != nil {
				return nil, errors.Wrapf(ErrMalformedPayload, "%s[%d]: %v", itemsKey, i, err)
			}
		}
	}
	if items == nil {
		items = []T{}
	}
	header.ItemCount = len(items)

	return &Envelope[T]{Header: header, Items: items}, nil
}

// items picks the item array. A null or empty array under one key falls through to the next
// alias; when every present key is empty, the first empty array is used.
func (c *Codec[T]) items(root gjson.Result) (string, gjson.Result, error) {
	var emptyKey string
	var empty gjson.Result
	for _, key := range append([]string{c.ItemsKey}, c.ItemsAliases...) {
		r := root.Get(key)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}
		if !r.IsArray() {
			return "", gjson.Result{}, malformed("%s must be an array", key)
		}
		if len(r.Array()) > 0 {
			return key, r, nil
		}
		if emptyKey == "" {
			emptyKey, empty = key, r
		}
	}
	if emptyKey == "" {
		return "", gjson.Result{}, malformed("%s is required", c.ItemsKey)
	}
	return emptyKey, empty, nil
}

// Validate decodes data and returns its header, discarding the items.
func (c *Codec[T]) Validate(data []byte) (Header, error) {
	envelope, err := c.Decode(data)
	if err != nil {
		return Header{}, err
	}
	return envelope.Header, nil
}

// Encode renders an envelope in the wire format Decode accepts.
func (c *Codec[T]) Encode(envelope *Envelope[T]) ([]byte, error) {
	if envelope == nil {
		return nil, errors.New("envelope is nil")
	}
	items := envelope.Items
	if items == nil {
		items = []T{}
	}
	count := envelope.Count
	if count < 0 {
		count = len(items)
	}

	payload := map[string]any{
		"version":   envelope.Version,
		"updatedAt": envelope.UpdatedAt.UTC().Format(time.RFC3339Nano),
		c.CountKey:  count,
		c.ItemsKey:  items,
	}
	if c.WithSlug && envelope.Slug != "" {
		payload["slug"] = envelope.Slug
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode envelope")
	}
	return data, nil
}

func integer(r gjson.Result) (int, bool) {
	if r.Type != gjson.Number {
		return 0, false
	}
	if r.Num != math.Trunc(r.Num) || math.Abs(r.Num) > math.MaxInt32 {
		return 0, false
	}
	return int(r.Num), true
}

func isNil(v any) bool {
	switch t := v.(type) {
	case *Player:
		return t == nil
	case *Course:
		return t == nil
	case *Round:
		return t == nil
	}
	return v == nil
}
