// Package factory provides a small generic registry used to instantiate
// pluggable modules, such as record stores and metrics sinks, from
// configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[ledger.Store]("store")
//	reg.MustRegister("file", func(conf map[string]any) (ledger.Store, error) {
//	    var c struct{ Dir string `json:"dir"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return store.NewFileStore(c.Dir)
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "file", Conf: map[string]any{"dir": "data"}})
package factory
