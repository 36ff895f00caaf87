package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BTreeMap/ConciergePipe/internal/models"
	"github.com/BTreeMap/ConciergePipe/internal/store"
)

func newSeedCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <properties.json>",
		Short: "Load property records into the store",
		Long: "Read a JSON array of property records and save each one. Records without an id get a new one; " +
			"a record whose code already exists replaces it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.db == "" {
				return fmt.Errorf("seed needs a persistent store: pass --db or set DATABASE_URL")
			}
			props, err := readProperties(args[0])
			if err != nil {
				return err
			}
			st, err := root.openStore()
			if err != nil {
				return err
			}
			defer closeStore(cmd.ErrOrStderr(), st)

			n, err := seedProperties(cmd.Context(), st, props)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d properties\n", n)
			return nil
		},
	}
}

// readProperties decodes a JSON array of properties from path ("-" for stdin).
func readProperties(path string) ([]models.Property, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	var props []models.Property
	if err := json.NewDecoder(r).Decode(&props); err != nil {
		return nil, fmt.Errorf("decoding properties from %s: %w", path, err)
	}
	return props, nil
}

// seedProperties validates every record before saving any of them.
func seedProperties(ctx context.Context, st store.Store, props []models.Property) (int, error) {
	for i := range props {
		if err := props[i].Validate(); err != nil {
			return 0, fmt.Errorf("property %d (%q): %w", i, props[i].Code, err)
		}
		if props[i].ID == "" {
			props[i].ID = uuid.NewString()
		}
	}
	for i, p := range props {
		if err := st.SaveProperty(ctx, p); err != nil {
			return i, fmt.Errorf("saving property %q: %w", p.Code, err)
		}
	}
	return len(props), nil
}
