package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/ConciergePipe/internal/webhook"
)

func newSignCmd() *cobra.Command {
	var (
		secret    string
		timestamp string
		file      string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print a webhook signature header for a payload",
		Long: "Sign a webhook body the way the JSON ingress verifies it, for testing a deployment with curl. " +
			"The body is read from --file or stdin.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("no signing secret: pass --secret or set WEBHOOK_SIGNING_SECRET")
			}
			var (
				body []byte
				err  error
			)
			if file != "" {
				body, err = os.ReadFile(file)
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("reading body: %w", err)
			}
			if timestamp == "" {
				timestamp = strconv.FormatInt(time.Now().Unix(), 10)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", webhook.SignatureHeader, webhook.SignatureHeaderValue(secret, timestamp, body))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("WEBHOOK_SIGNING_SECRET"), "signing secret (default $WEBHOOK_SIGNING_SECRET)")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "unix timestamp to sign (default now)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file containing the body")
	return cmd
}
