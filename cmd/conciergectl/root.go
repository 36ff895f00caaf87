package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/ConciergePipe/internal/store"
)

type rootOptions struct {
	db      string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "conciergectl",
		Short:         "Operate a ConciergePipe deployment",
		Long:          "Simulate guest conversations, sign test webhook payloads and load property records.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().StringVar(&opts.db, "db", os.Getenv("DATABASE_URL"), "PostgreSQL DSN or SQLite path; empty for in-memory (default $DATABASE_URL)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to stderr")

	root.AddCommand(
		newSimulateCmd(opts),
		newSignCmd(),
		newSeedCmd(opts),
	)
	return root
}

// openStore opens the store selected by --db.
func (o *rootOptions) openStore() (store.Backend, error) {
	st, err := store.Open(o.db)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

// closeStore closes the store, reporting any error to w.
func closeStore(w io.Writer, st store.Store) {
	if err := st.Close(); err != nil {
		fmt.Fprintf(w, "warning: closing store: %v\n", err)
	}
}
