package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/slack-go/slack"

	"github.com/LoveLedger/LoveLedger/internal/bus"
)

// Sink receives dispatched events.
type Sink interface {
	Handle(ctx context.Context, ev *bus.Event)
}

// Attach subscribes every sink to all events on b.
func Attach(b *bus.EventBus, sinks ...Sink) {
	for _, s := range sinks {
		b.Subscribe(bus.Wildcard, s.Handle)
	}
}

// LogSink logs events.
type LogSink struct{}

// Handle implements Sink.
func (LogSink) Handle(_ context.Context, ev *bus.Event) {
	slog.Info("Event", "name", ev.Name, "id", ev.ID, "payload", ev.Payload)
}

// KafkaConfig addresses the event topic.
type KafkaConfig struct {
	Brokers string
	Topic   string
	GroupID string
	Timeout time.Duration
}

func (c KafkaConfig) brokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each event to a topic, keyed by invitation.
type KafkaSink struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafkaSink creates a synchronous writer for cfg.Topic.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	brokers := cfg.brokerList()
	if len(brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink: brokers and topic are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSink{w: w, timeout: cfg.Timeout}, nil
}

// Handle implements Sink. Write failures are logged.
func (s *KafkaSink) Handle(ctx context.Context, ev *bus.Event) {
	value, err := EncodeEnvelope(ev)
	if err != nil {
		slog.Warn("KafkaSink: encode failed", "event", ev.Name, "error", err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.w.WriteMessages(wctx, kafka.Message{
		Key:     []byte(EventKey(ev)),
		Value:   value,
		Headers: []kafka.Header{{Key: "event", Value: []byte(ev.Name)}},
		Time:    ev.OccurredAt,
	})
	if err != nil {
		slog.Warn("KafkaSink: write failed", "event", ev.Name, "id", ev.ID, "error", err)
	}
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}

// SlackConfig addresses the summary channel.
type SlackConfig struct {
	Token   string
	Channel string
	APIBase string
}

// SlackSink posts completed-date summaries to a channel.
type SlackSink struct {
	api     *slack.Client
	channel string
}

// NewSlackSink creates a sink posting to cfg.Channel.
func NewSlackSink(cfg SlackConfig) (*SlackSink, error) {
	if strings.TrimSpace(cfg.Token) == "" || strings.TrimSpace(cfg.Channel) == "" {
		return nil, fmt.Errorf("slack sink: token and channel are required")
	}
	base := strings.TrimSpace(cfg.APIBase)
	if base == "" {
		base = "https://slack.com/api"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &SlackSink{
		api:     slack.New(cfg.Token, slack.OptionAPIURL(base)),
		channel: cfg.Channel,
	}, nil
}

// Handle implements Sink. Only date.completed is posted.
func (s *SlackSink) Handle(ctx context.Context, ev *bus.Event) {
	if ev.Name != bus.EventDateCompleted {
		return
	}
	if _, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(Summary(ev), false)); err != nil {
		slog.Warn("SlackSink: post failed", "event", ev.Name, "id", ev.ID, "error", err)
	}
}

// Summary is the one-line text posted for a completed date.
func Summary(ev *bus.Event) string {
	p := ev.Payload
	return fmt.Sprintf("Date #%v completed: %v and %v had %v at the %v. Rating %v, +%v pMON, +%v charm each.",
		p["invitationId"], short(p["inviter"]), short(p["invitee"]), p["dateType"], p["venue"],
		p["averageRating"], p["pmonAwarded"], p["charmAwarded"])
}

func short(v any) string {
	s, _ := v.(string)
	if len(s) > 10 {
		return s[:6] + "…" + s[len(s)-4:]
	}
	return s
}

// Tail reads events from the topic until ctx is cancelled, calling fn for each.
func Tail(ctx context.Context, cfg KafkaConfig, fn func(*bus.Event)) error {
	brokers := cfg.brokerList()
	if len(brokers) == 0 || cfg.Topic == "" {
		return fmt.Errorf("tail: brokers and topic are required")
	}
	rc := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if cfg.GroupID == "" {
		rc.StartOffset = kafka.LastOffset
	}
	reader := kafka.NewReader(rc)
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		ev, err := DecodeEnvelope(msg.Value)
		if err != nil {
			slog.Warn("Tail: skipping undecodable message", "offset", msg.Offset, "error", err)
			continue
		}
		fn(ev)
	}
}
