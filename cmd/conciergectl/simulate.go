package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/ConciergePipe/internal/concierge"
	"github.com/BTreeMap/ConciergePipe/internal/genai"
	"github.com/BTreeMap/ConciergePipe/internal/store"
	"github.com/BTreeMap/ConciergePipe/internal/util"
	"github.com/BTreeMap/ConciergePipe/internal/webhook"
)

const (
	defaultGuestPhone    = "+15550100000"
	defaultPropertyPhone = "+15550199999"
)

// printSender writes outbound segments to the terminal instead of a provider.
type printSender struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printSender) Provider() string { return "terminal" }

func (p *printSender) Send(ctx context.Context, from, to, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.out, "< %s\n", text)
	return err
}

func newSimulateCmd(root *rootOptions) *cobra.Command {
	var (
		phone          string
		propertiesFile string
		recommendURL   string
		openAIKey      string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Chat with the concierge from the terminal",
		Long: "Read guest messages line by line from stdin and print the concierge's replies. " +
			"Conversation state is kept in the store selected by --db; nothing is sent over SMS. " +
			"Type /state to show the stored conversation.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := root.openStore()
			if err != nil {
				return err
			}
			defer closeStore(cmd.ErrOrStderr(), st)

			if propertiesFile != "" {
				props, err := readProperties(propertiesFile)
				if err != nil {
					return err
				}
				if _, err := seedProperties(cmd.Context(), st, props); err != nil {
					return err
				}
			}

			completer, err := simulationCompleter(recommendURL, openAIKey)
			if err != nil {
				return err
			}
			machine := concierge.NewMachine(st, concierge.NewComposer(completer))
			return runSimulation(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), st, machine, phone)
		},
	}
	cmd.Flags().StringVar(&phone, "phone", defaultGuestPhone, "guest phone number to simulate")
	cmd.Flags().StringVar(&propertiesFile, "properties", "", "JSON file of properties to load before starting")
	cmd.Flags().StringVar(&recommendURL, "recommendation-url", os.Getenv("RECOMMENDATION_URL"), "HTTP recommendation endpoint (default $RECOMMENDATION_URL)")
	cmd.Flags().StringVar(&openAIKey, "openai-api-key", os.Getenv("OPENAI_API_KEY"), "OpenAI API key (default $OPENAI_API_KEY)")
	return cmd
}

// simulationCompleter prefers the recommendation endpoint, then OpenAI. With neither the
// composer answers with its fallback reply.
func simulationCompleter(recommendURL, openAIKey string) (genai.Completer, error) {
	switch {
	case recommendURL != "":
		return genai.NewEndpointClient(genai.WithEndpoint(recommendURL, os.Getenv("RECOMMENDATION_API_KEY")))
	case openAIKey != "":
		return genai.NewClient(genai.WithAPIKey(openAIKey))
	default:
		return nil, nil
	}
}

// runSimulation feeds each input line through the same delivery path as the webhook.
func runSimulation(ctx context.Context, in io.Reader, out io.Writer, st store.Backend, engine webhook.Engine, phone string) error {
	deps := webhook.DeliveryDeps{Engine: engine, Sender: &printSender{out: out}, Ledger: st}
	sc := bufio.NewScanner(in)
	fmt.Fprintf(out, "Simulating guest %s. Ctrl-D to exit.\n", phone)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/state":
			if err := printState(ctx, out, st, phone); err != nil {
				return err
			}
			continue
		}
		webhook.Deliver(ctx, deps, webhook.Inbound{
			MessageID: util.GenerateSimulatedMessageID(),
			From:      phone,
			To:        defaultPropertyPhone,
			Text:      line,
		})
	}
}

func printState(ctx context.Context, out io.Writer, st store.Store, phone string) error {
	conv, err := st.GetConversation(ctx, phone)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if conv == nil {
		fmt.Fprintln(out, "  (no conversation yet)")
		return nil
	}
	fmt.Fprintf(out, "  state=%s confirmed=%t property=%s name=%q category=%q interests=%v\n",
		conv.State, conv.PropertyConfirmed, deref(conv.PropertyID), conv.Name(), conv.LastCategory(), conv.GuestProfile.Interests)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
