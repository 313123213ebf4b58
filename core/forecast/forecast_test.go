package forecast

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/ledger"
)

func reading(day time.Time, window int, house float64) *ledger.ReadingRecord {
	r := &ledger.ReadingRecord{Window: window, End: day.Add(time.Duration(window) * 5 * time.Minute)}
	r.House = house
	return r
}

func dayRecord(day time.Time, readings ...*ledger.ReadingRecord) ledger.DayRecord {
	rs := make([]*ledger.ReadingRecord, 288)
	for _, r := range readings {
		rs[r.Window] = r
	}
	return ledger.DayRecord{Date: ledger.DayKey(day), Readings: rs}
}

// fullSlot records all six windows of a half-hour slot.
func fullSlot(day time.Time, slot int, perWindow float64) []*ledger.ReadingRecord {
	out := make([]*ledger.ReadingRecord, 0, 6)
	for w := slot * 6; w < (slot+1)*6; w++ {
		out = append(out, reading(day, w, perWindow))
	}
	return out
}

func TestDayProfileSumsCompleteSlots(t *testing.T) {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	var rs []*ledger.ReadingRecord
	rs = append(rs, fullSlot(day, 0, 0.05)...)
	rs = append(rs, fullSlot(day, 47, 0.2)...)
	p := DayProfile(dayRecord(day, rs...))
	if math.Abs(p[0]-0.3) > 1e-9 {
		t.Fatalf("slot 0: expected 0.3 got %v", p[0])
	}
	if math.Abs(p[47]-1.2) > 1e-9 {
		t.Fatalf("slot 47: expected 1.2 got %v", p[47])
	}
	if !p.Missing(2) {
		t.Fatalf("slot 2 has no data and must be missing")
	}
}

func TestDayProfilePartialSlotIsMissing(t *testing.T) {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rs := fullSlot(day, 21, 0.1)
	rs = append(rs, reading(day, 125, 0.1))
	p := DayProfile(dayRecord(day, rs...))
	if !p.Missing(20) {
		t.Fatalf("slot 20 has one of six windows and must be missing, got %v", p[20])
	}
	if math.Abs(p[21]-0.6) > 1e-9 {
		t.Fatalf("slot 21: expected 0.6 got %v", p[21])
	}

	// one dropped window makes its slot missing
	full := fullSlot(day, 21, 0.1)
	full[3] = nil
	var kept []*ledger.ReadingRecord
	for _, r := range full {
		if r != nil {
			kept = append(kept, r)
		}
	}
	if p := DayProfile(dayRecord(day, kept...)); !p.Missing(21) {
		t.Fatalf("slot 21 with a gap must be missing, got %v", p[21])
	}
}

func TestDayProfileSpreadsLongWindows(t *testing.T) {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rs := make([]*ledger.ReadingRecord, 24)
	rs[3] = &ledger.ReadingRecord{Window: 3}
	rs[3].House = 2
	p := DayProfile(ledger.DayRecord{Date: ledger.DayKey(day), Readings: rs})
	if p[6] != 1 || p[7] != 1 {
		t.Fatalf("hour window must split over slots 6 and 7, got %v %v", p[6], p[7])
	}
	if len(p.MissingSlots()) != 46 {
		t.Fatalf("expected 46 missing slots, got %d", len(p.MissingSlots()))
	}
	if len(DayProfile(ledger.DayRecord{}).MissingSlots()) != battery.SlotsPerDay {
		t.Fatal("empty day must be all missing")
	}
}

func TestDailyProfileAveragesPresentDays(t *testing.T) {
	d1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	day1 := append(fullSlot(d1, 0, 1.0/6), fullSlot(d1, 1, 0.5)...)
	// day 2 records slot 0 fully and slot 1 only partly
	day2 := append(fullSlot(d2, 0, 2.0/6), reading(d2, 6, 9))
	days := []ledger.DayRecord{dayRecord(d1, day1...), dayRecord(d2, day2...)}
	p := DailyProfile(days)
	if math.Abs(p[0]-1.5) > 1e-9 {
		t.Fatalf("slot 0: expected 1.5 got %v", p[0])
	}
	if math.Abs(p[1]-3) > 1e-9 {
		t.Fatalf("slot 1 averages only the day with a complete slot, got %v", p[1])
	}
	if len(p.MissingSlots()) != 46 {
		t.Fatalf("expected 46 missing slots, got %d", len(p.MissingSlots()))
	}
}

func TestReadCSV(t *testing.T) {
	in := "date,price\n" +
		"2024-02-01T00:00:00Z,10.5\n" +
		"2024-02-01T00:30:00Z,11\n" +
		"2024-02-01T00:30:00Z,12\n" +
		"2024-02-01 23:30:00,30\n" +
		"2024-02-02T00:00:00Z,99\n"
	s, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if s.Duplicates != 1 || s.Len() != 4 {
		t.Fatalf("unexpected series: dup=%d len=%d", s.Duplicates, s.Len())
	}
	p := s.Day(time.Date(2024, 2, 1, 13, 0, 0, 0, time.UTC))
	if p[0] != 10.5 || p[1] != 12 || p[47] != 30 {
		t.Fatalf("unexpected prices %v %v %v", p[0], p[1], p[47])
	}
	if !p.Missing(2) {
		t.Fatalf("slot 2 must be missing")
	}
	if _, err := ReadCSV(strings.NewReader("2024-02-01T00:00:00Z,abc\n")); err == nil {
		t.Fatalf("expected price parse error")
	}
}

func TestDecodeTable(t *testing.T) {
	vals := make([]string, 48)
	for i := range vals {
		vals[i] = "1"
	}
	y := "prices: [" + strings.Join(vals, ", ") + "]\n"
	tbl, err := DecodeTable(strings.NewReader(y), "yaml")
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if tbl.Day(time.Now()) != battery.FlatProfile(1) {
		t.Fatalf("unexpected table")
	}
	_, err = DecodeTable(strings.NewReader(`{"prices":[1,2,3]}`), "json")
	if !errors.Is(err, ErrShortSeries) {
		t.Fatalf("expected ErrShortSeries, got %v", err)
	}
	if _, err := DecodeTable(strings.NewReader(""), "toml"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestOpenPricesByExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "agile.csv")
	if err := os.WriteFile(csvPath, []byte("2024-02-01T10:00:00Z,7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPrices(csvPath, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p[20] != 7 {
		t.Fatalf("expected slot 20 price 7, got %v", p[20])
	}
	if _, err := OpenPrices(filepath.Join(dir, "prices.txt")); err == nil {
		t.Fatalf("expected extension error")
	}

	src, err := NewPriceSource("", 15)
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	if src.Day(time.Now())[10] != 15 {
		t.Fatalf("flat price mismatch")
	}
	if _, err := NewPriceSource("", 0); err == nil {
		t.Fatalf("expected error without prices")
	}
}
