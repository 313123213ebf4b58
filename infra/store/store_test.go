package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sunledger/core/factory"
	"github.com/kilianp07/sunledger/core/ledger"
)

func sampleDay() ledger.DayRecord {
	readings := make([]*ledger.ReadingRecord, 288)
	level := 55.0
	r := &ledger.ReadingRecord{Window: 3, End: time.Date(2024, 1, 15, 0, 15, 0, 0, time.UTC), Cheap: true, BatteryLevel: &level, ImportCostCheap: 0.02}
	r.Import = 0.2
	r.House = 0.3
	readings[3] = r
	return ledger.DayRecord{
		Date:     "2024-01-15",
		Settings: ledger.Settings{WindowMinutes: 5, CheapStart: "23:30", CheapEnd: "05:30", UnitCostCheap: 0.1, UnitCostExpensive: 0.3},
		Readings: readings,
	}
}

func stores(t *testing.T) map[string]ledger.Store {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFileStore(filepath.Join(dir, "files"))
	require.NoError(t, err)
	sq, err := NewSQLiteStore(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]ledger.Store{"file": fs, "sqlite": sq}
}

func TestStoresRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := s.Exists(ctx, ledger.KindReadings, "2024-01-15")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = s.Read(ctx, ledger.KindReadings, "2024-01-15")
			assert.True(t, errors.Is(err, ledger.ErrNotFound))

			day := sampleDay()
			require.NoError(t, s.Write(ctx, ledger.KindReadings, day.Date, day))
			ok, err = s.Exists(ctx, ledger.KindReadings, day.Date)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := s.Read(ctx, ledger.KindReadings, day.Date)
			require.NoError(t, err)
			assert.Equal(t, day.Settings, got.Settings)
			require.Len(t, got.Readings, 288)
			assert.Nil(t, got.Readings[0])
			require.NotNil(t, got.Readings[3])
			assert.Equal(t, 0.2, got.Readings[3].Import)
			assert.True(t, got.Readings[3].End.Equal(day.Readings[3].End))
			require.NotNil(t, got.Readings[3].BatteryLevel)
			assert.Equal(t, 55.0, *got.Readings[3].BatteryLevel)

			day.Readings[4] = &ledger.ReadingRecord{Window: 4}
			require.NoError(t, s.Write(ctx, ledger.KindReadings, day.Date, day))
			got, err = s.Read(ctx, ledger.KindReadings, day.Date)
			require.NoError(t, err)
			assert.NotNil(t, got.Readings[4])
		})
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Exists(context.Background(), ledger.KindReadings, "../etc")
	assert.Error(t, err)
	assert.Error(t, s.Write(context.Background(), "", "2024-01-01", ledger.DayRecord{}))
}

func TestSQLiteKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	for _, k := range []string{"2024-01-03", "2024-01-01", "2024-01-02"} {
		require.NoError(t, s.Write(ctx, ledger.KindReadings, k, ledger.DayRecord{Date: k}))
	}
	keys, err := s.Keys(ctx, ledger.KindReadings)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, keys)
}

func TestRegisteredStores(t *testing.T) {
	dir := t.TempDir()
	s, err := ledger.NewStore(factory.ModuleConfig{Type: "file", Conf: map[string]any{"dir": dir}})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = ledger.NewStore(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": filepath.Join(dir, "x.db")}})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = ledger.NewStore(factory.ModuleConfig{Type: "sqlite"})
	assert.Error(t, err)
}
