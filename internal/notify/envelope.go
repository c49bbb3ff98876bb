// Package notify delivers bus events to external channels.
package notify

import (
	"fmt"
	"strconv"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LoveLedger/LoveLedger/internal/bus"
)

// EncodeEnvelope renders ev as protojson of {id, name, occurredAt, payload}.
func EncodeEnvelope(ev *bus.Event) ([]byte, error) {
	payload, err := payloadToStruct(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", ev.Name, err)
	}
	env := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":         structpb.NewStringValue(ev.ID),
		"name":       structpb.NewStringValue(ev.Name),
		"occurredAt": structpb.NewStringValue(ev.OccurredAt.UTC().Format(time.RFC3339Nano)),
		"payload":    structpb.NewStructValue(payload),
	}}
	return protojson.Marshal(env)
}

// DecodeEnvelope parses a value written by EncodeEnvelope.
func DecodeEnvelope(data []byte) (*bus.Event, error) {
	var env structpb.Struct
	if err := protojson.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	fields := env.GetFields()
	ev := &bus.Event{
		ID:   fields["id"].GetStringValue(),
		Name: fields["name"].GetStringValue(),
	}
	if ev.Name == "" {
		return nil, fmt.Errorf("decode envelope: missing name")
	}
	if ts := fields["occurredAt"].GetStringValue(); ts != "" {
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("decode envelope: occurredAt: %w", err)
		}
		ev.OccurredAt = at
	}
	if p := fields["payload"].GetStructValue(); p != nil {
		ev.Payload = p.AsMap()
	}
	return ev, nil
}

// EventKey is the partition key: the invitation id when present, else the event id.
func EventKey(ev *bus.Event) string {
	switch v := ev.Payload["invitationId"].(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case string:
		if v != "" {
			return v
		}
	}
	return ev.ID
}

func payloadToStruct(data map[string]any) (*structpb.Struct, error) {
	if data == nil {
		return &structpb.Struct{}, nil
	}
	converted := make(map[string]any, len(data))
	for key, value := range data {
		v, err := normalizeValue(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", key, err)
		}
		converted[key] = v
	}
	return structpb.NewStruct(converted)
}

func normalizeValue(value any) (any, error) {
	switch typed := value.(type) {
	case nil, bool, string, float64, int64:
		return typed, nil
	case int:
		return int64(typed), nil
	case int32:
		return int64(typed), nil
	case float32:
		return float64(typed), nil
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano), nil
	case *time.Time:
		if typed == nil {
			return nil, nil
		}
		return typed.UTC().Format(time.RFC3339Nano), nil
	case []string:
		out := make([]any, len(typed))
		for i, s := range typed {
			out[i] = s
		}
		return out, nil
	case map[string]any:
		converted := make(map[string]any, len(typed))
		for key, item := range typed {
			v, err := normalizeValue(item)
			if err != nil {
				return nil, fmt.Errorf("invalid nested value for %q: %w", key, err)
			}
			converted[key] = v
		}
		return converted, nil
	case []any:
		converted := make([]any, 0, len(typed))
		for _, item := range typed {
			v, err := normalizeValue(item)
			if err != nil {
				return nil, err
			}
			converted = append(converted, v)
		}
		return converted, nil
	case fmt.Stringer:
		return typed.String(), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}
