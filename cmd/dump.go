package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/sunledger/core/ledger"
	"github.com/kilianp07/sunledger/pkg/export"
)

var dumpOpts struct {
	from, to string
	output   string
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Export stored readings as CSV",
	RunE:  runDump,
}

func init() {
	f := dumpCmd.Flags()
	f.StringVar(&dumpOpts.from, "from", "", "first day (YYYY-MM-DD), default --to")
	f.StringVar(&dumpOpts.to, "to", "today", "last day (YYYY-MM-DD)")
	f.StringVarP(&dumpOpts.output, "output", "o", "", "output file, default stdout")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	to, err := parseDate(dumpOpts.to, time.Now())
	if err != nil {
		return err
	}
	from, err := parseDate(dumpOpts.from, to)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	days, err := ledger.LoadDays(cmd.Context(), store, from, to)
	if err != nil {
		return err
	}
	w, closeOut, err := output(dumpOpts.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	err = export.WriteReadingsCSV(w, days)
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}
