package db

import (
	"encoding/json"
	"testing"
)

func TestPoolHealth_JSONShape(t *testing.T) {
	raw, err := json.Marshal(PoolHealth{
		Open:      4,
		Idle:      2,
		InUse:     2,
		Max:       10,
		WaitedFor: "120ms",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"open", "idle", "in_use", "max", "waited_for"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("readiness payload missing %q", key)
		}
	}
	if decoded["open"].(float64) != 4 {
		t.Errorf("expected open=4, got %v", decoded["open"])
	}
	if decoded["waited_for"] != "120ms" {
		t.Errorf("expected waited_for=120ms, got %v", decoded["waited_for"])
	}
}
