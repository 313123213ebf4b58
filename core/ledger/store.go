package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/sunledger/core/factory"
)

// ErrNotFound is returned by a Store when no record exists for a key.
var ErrNotFound = errors.New("record not found")

// Store persists day records keyed by kind and ISO date.
type Store interface {
	Exists(ctx context.Context, kind, key string) (bool, error)
	Read(ctx context.Context, kind, key string) (DayRecord, error)
	Write(ctx context.Context, kind, key string, rec DayRecord) error
	Close() error
}

// Stores holds the registered Store factories.
var Stores = factory.NewRegistry[Store]("store")

// NewStore instantiates the configured store.
func NewStore(cfg factory.ModuleConfig) (Store, error) {
	return Stores.Create(cfg)
}

// LoadDays reads the stored day records from `from` to `to` inclusive. Days
// without a record are skipped.
func LoadDays(ctx context.Context, s Store, from, to time.Time) ([]DayRecord, error) {
	var out []DayRecord
	for d := StartOfDay(from); !d.After(StartOfDay(to)); d = d.AddDate(0, 0, 1) {
		key := DayKey(d)
		rec, err := s.Read(ctx, KindReadings, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read day %s: %w", key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
