package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LoveLedger/LoveLedger/internal/bus"
	"github.com/LoveLedger/LoveLedger/internal/notify"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect published events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow events on the Kafka topic until interrupted",
	RunE:  runEventsTail,
}

var (
	tailBrokers string
	tailTopic   string
	tailGroup   string
	tailJSON    bool
)

// tailFn is swapped in tests.
var tailFn = notify.Tail

func init() {
	eventsTailCmd.Flags().StringVar(&tailBrokers, "brokers", "", "Comma-separated brokers (default from config)")
	eventsTailCmd.Flags().StringVar(&tailTopic, "topic", "", "Topic (default from config)")
	eventsTailCmd.Flags().StringVar(&tailGroup, "group", "", "Consumer group; empty starts at the newest offset")
	eventsTailCmd.Flags().BoolVar(&tailJSON, "json", false, "Print raw JSON envelopes")
	eventsCmd.AddCommand(eventsTailCmd)
	rootCmd.AddCommand(eventsCmd)
}

func runEventsTail(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigFn()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	kc := notify.KafkaConfig{
		Brokers: cfg.Notify.Kafka.Brokers,
		Topic:   cfg.Notify.Kafka.Topic,
		GroupID: tailGroup,
	}
	if tailBrokers != "" {
		kc.Brokers = tailBrokers
	}
	if tailTopic != "" {
		kc.Topic = tailTopic
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	return tailFn(ctx, kc, func(ev *bus.Event) {
		if tailJSON {
			if data, err := notify.EncodeEnvelope(ev); err == nil {
				fmt.Fprintln(out, string(data))
				return
			}
		}
		fmt.Fprintf(out, "%s %-22s %s\n", ev.OccurredAt.Local().Format("15:04:05"), ev.Name, describe(ev))
	})
}

func describe(ev *bus.Event) string {
	if ev.Name == bus.EventDateCompleted {
		return notify.Summary(ev)
	}
	if id, ok := ev.Payload["invitationId"]; ok {
		return fmt.Sprintf("invitation #%v", id)
	}
	if w, ok := ev.Payload["wallet"]; ok {
		return fmt.Sprintf("%v %v %v", w, ev.Payload["amount"], ev.Payload["currency"])
	}
	return ev.ID
}

