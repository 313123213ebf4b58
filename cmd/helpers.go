package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kilianp07/sunledger/config"
	"github.com/kilianp07/sunledger/core/ledger"
	_ "github.com/kilianp07/sunledger/infra/store"
)

func openStore(cfg *config.Config) (ledger.Store, error) {
	s, err := ledger.NewStore(cfg.Ledger.Store)
	if err != nil {
		return nil, fmt.Errorf("ledger store: %w", err)
	}
	return s, nil
}

// parseDate accepts YYYY-MM-DD or a relative day name, empty meaning def.
func parseDate(s string, def time.Time) (time.Time, error) {
	now := time.Now().UTC()
	switch s {
	case "":
		return ledger.StartOfDay(def), nil
	case "today":
		return ledger.StartOfDay(now), nil
	case "yesterday":
		return ledger.StartOfDay(now.AddDate(0, 0, -1)), nil
	case "tomorrow":
		return ledger.StartOfDay(now.AddDate(0, 0, 1)), nil
	}
	t, err := time.Parse(ledger.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	return t, nil
}

// output opens path for writing, stdout when empty.
func output(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
