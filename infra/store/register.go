package store

import (
	"errors"

	"github.com/kilianp07/sunledger/core/factory"
	"github.com/kilianp07/sunledger/core/ledger"
)

func init() {
	ledger.Stores.MustRegister("file", func(conf map[string]any) (ledger.Store, error) {
		var c struct {
			Dir string `json:"dir"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewFileStore(c.Dir)
	})
	ledger.Stores.MustRegister("sqlite", func(conf map[string]any) (ledger.Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, errors.New("sqlite store requires a path")
		}
		return NewSQLiteStore(c.Path)
	})
}
