package golf

import (
	"context"
	"strings"

	"github.com/hrygo/fairway/server/service/history"
	"github.com/hrygo/fairway/store"
)

func (s *service) Status(ctx context.Context) (*Status, error) {
	status := &Status{Day: s.gate.Today()}

	for _, name := range Collections {
		slot, err := s.store.Slot(name.Key())
		if err != nil {
			return nil, err
		}
		entry := &SlotStatus{Key: name.Key(), Exists: slot.Exists()}
		if entry.Exists {
			data, err := slot.Read()
			if err == nil {
				fill(entry, data, name)
			}
		}
		status.Slots = append(status.Slots, entry)
	}

	keys, err := s.store.SlotKeys(history.KeyPrefix)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		slot, err := s.store.Slot(key)
		if err != nil {
			return nil, err
		}
		entry := &SlotStatus{Key: key, Exists: true}
		if data, err := slot.Read(); err == nil {
			if envelope, err := store.RoundsCodec.Decode(data); err == nil {
				entry.Readable = true
				entry.Version = envelope.Version
				updatedAt := envelope.UpdatedAt
				entry.UpdatedAt = &updatedAt
				entry.Items = len(envelope.Items)
			}
		}
		if entry.Refreshed, err = s.gate.LastRefreshed(ctx, key); err != nil {
			return nil, err
		}
		entry.Loaded = s.history.State(strings.TrimPrefix(key, history.KeyPrefix)).String()
		status.Slots = append(status.Slots, entry)
	}
	return status, nil
}

func fill(entry *SlotStatus, data []byte, name Collection) {
	var header store.Header
	var items int
	switch name {
	case Players:
		envelope, err := store.PlayersCodec.Decode(data)
		if err != nil {
			return
		}
		header, items = envelope.Header, len(envelope.Items)
	case Courses:
		envelope, err := store.CoursesCodec.Decode(data)
		if err != nil {
			return
		}
		header, items = envelope.Header, len(envelope.Items)
	default:
		return
	}
	entry.Readable = true
	entry.Version = header.Version
	entry.UpdatedAt = &header.UpdatedAt
	entry.Items = items
}
