package forecast

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/sunledger/core/battery"
	"github.com/kilianp07/sunledger/core/ledger"
)

// ErrShortSeries is returned when a price table does not hold one value per
// planning slot.
var ErrShortSeries = errors.New("price table must hold 48 values")

// PriceSource yields the half-hourly prices of a UTC day. Unknown slots are
// missing.
type PriceSource interface {
	Day(day time.Time) battery.Profile
}

// Flat charges the same price in every slot of every day.
type Flat float64

func (f Flat) Day(time.Time) battery.Profile { return battery.FlatProfile(float64(f)) }

// Table repeats the same half-hourly prices every day.
type Table battery.Profile

func (t Table) Day(time.Time) battery.Profile { return battery.Profile(t) }

// TableFile is the YAML or JSON shape of a manual price table.
type TableFile struct {
	Prices []float64 `json:"prices" yaml:"prices"`
}

// DecodeTable reads a manual price table. Format is "yaml" or "json".
func DecodeTable(r io.Reader, format string) (Table, error) {
	var tf TableFile
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.NewDecoder(r).Decode(&tf)
	case "json":
		err = json.NewDecoder(r).Decode(&tf)
	default:
		return Table{}, fmt.Errorf("unknown price table format %q", format)
	}
	if err != nil {
		return Table{}, fmt.Errorf("decode price table: %w", err)
	}
	if len(tf.Prices) != battery.SlotsPerDay {
		return Table{}, fmt.Errorf("%w, got %d", ErrShortSeries, len(tf.Prices))
	}
	p, err := battery.NewProfile(tf.Prices)
	if err != nil {
		return Table{}, err
	}
	return Table(p), nil
}

// Series holds dated half-hour prices, keyed by slot start.
type Series struct {
	prices map[int64]float64
	// Duplicates counts timestamps seen more than once; the last value wins.
	Duplicates int
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ReadCSV parses "timestamp,price" lines. A leading header line is skipped.
func ReadCSV(r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	s := &Series{prices: map[int64]float64{}}
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read prices: %w", err)
		}
		line++
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected timestamp,price", line)
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: price: %w", line, err)
		}
		key := ts.Truncate(battery.SlotDuration).Unix()
		if _, ok := s.prices[key]; ok {
			s.Duplicates++
		}
		s.prices[key] = v
	}
	return s, nil
}

// Len returns the number of distinct half-hours known.
func (s *Series) Len() int { return len(s.prices) }

// Day returns the prices of the UTC day containing day.
func (s *Series) Day(day time.Time) battery.Profile {
	p := battery.MissingProfile()
	start := ledger.StartOfDay(day)
	for i := range p {
		if v, ok := s.prices[start.Add(time.Duration(i)*battery.SlotDuration).Unix()]; ok {
			p[i] = v
		}
	}
	return p
}

// OpenPrices loads a price source from a file, choosing the format from the
// extension: .csv for dated series, .yaml/.yml/.json for a daily table.
func OpenPrices(path string) (PriceSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "csv":
		s, err := ReadCSV(f)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "yaml", "yml", "json":
		t, err := DecodeTable(f, ext)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported price file extension %q", ext)
	}
}

// LoadPrices returns the prices of one day from a price file.
func LoadPrices(path string, day time.Time) (battery.Profile, error) {
	src, err := OpenPrices(path)
	if err != nil {
		return battery.Profile{}, err
	}
	return src.Day(day), nil
}

// NewPriceSource picks a price file when set, otherwise a flat price. It
// fails when neither is usable.
func NewPriceSource(path string, flat float64) (PriceSource, error) {
	if path != "" {
		return OpenPrices(path)
	}
	if flat > 0 && !math.IsInf(flat, 0) {
		return Flat(flat), nil
	}
	return nil, errors.New("no price file or flat price configured")
}
