package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLogSinkEmitsStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.Log(context.Background(), Event{
		TenantID:   "t1",
		ActorID:    "u1",
		Action:     "encounter.order_lab",
		EntityType: "encounter",
		EntityID:   "e1",
		FromStatus: "registered",
		ToStatus:   "lab_ordered",
		At:         time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	})

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unexpected log output: %v", err)
	}
	if line["tenant_id"] != "t1" || line["action"] != "encounter.order_lab" {
		t.Errorf("missing fields in audit line: %v", line)
	}
	if line["from_status"] != "registered" || line["to_status"] != "lab_ordered" {
		t.Errorf("missing transition fields: %v", line)
	}
}

func TestLogSinkDefaultsTimestamp(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.Log(context.Background(), Event{TenantID: "t1", Action: "x"})

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unexpected log output: %v", err)
	}
	if _, ok := line["at"]; !ok {
		t.Error("expected timestamp to be defaulted")
	}
}

func TestSinkFuncAdapter(t *testing.T) {
	var got Event
	sink := SinkFunc(func(_ context.Context, e Event) { got = e })
	sink.Log(context.Background(), Event{Action: "document.publish"})
	if got.Action != "document.publish" {
		t.Errorf("adapter did not forward event, got %q", got.Action)
	}
}
