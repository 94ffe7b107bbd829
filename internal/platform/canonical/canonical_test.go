package canonical

import (
	"strings"
	"testing"
)

func TestHashKeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"a": 1, "b": 2}
	b := map[string]interface{}{"b": 2, "a": 1}

	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ha != hb {
		t.Errorf("hashes differ for equivalent maps: %s vs %s", ha, hb)
	}
}

func TestHashArrayOrderSensitive(t *testing.T) {
	a := map[string]interface{}{"items": []interface{}{1, 2}}
	b := map[string]interface{}{"items": []interface{}{2, 1}}

	ha, _ := Hash(a)
	hb, _ := Hash(b)
	if ha == hb {
		t.Error("expected different hashes for reordered arrays")
	}
}

func TestCanonicalizeNestedSorting(t *testing.T) {
	v := map[string]interface{}{
		"z": map[string]interface{}{"b": 1, "a": 2},
		"a": "x",
	}
	out, err := Canonicalize(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"a":"x","z":{"a":2,"b":1}}`
	if string(out) != want {
		t.Errorf("canonical form = %s, want %s", out, want)
	}
}

func TestCanonicalizeStructViaJSONTags(t *testing.T) {
	type payload struct {
		Name  string  `json:"name"`
		Total float64 `json:"total"`
		Note  string  `json:"note,omitempty"`
	}
	out, err := Canonicalize(payload{Name: "receipt", Total: 120.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"name":"receipt","total":120.5}`
	if string(out) != want {
		t.Errorf("canonical form = %s, want %s", out, want)
	}
}

func TestCanonicalizeNumbersKeepNotation(t *testing.T) {
	out, err := Canonicalize(map[string]interface{}{"v": 5.40})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 5.40 marshals as 5.4 and must stay that way on re-emit.
	if string(out) != `{"v":5.4}` {
		t.Errorf("canonical form = %s", out)
	}
}

func TestCanonicalizeNullAndBool(t *testing.T) {
	out, err := Canonicalize(map[string]interface{}{"flag": true, "gone": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"flag":true,"gone":null}` {
		t.Errorf("canonical form = %s", out)
	}
}

func TestHashIsHexSHA256(t *testing.T) {
	h, err := Hash(map[string]interface{}{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h))
	}
	if strings.ToLower(h) != h {
		t.Error("expected lowercase hex")
	}
}

func TestCanonicalizeUnmarshalableInput(t *testing.T) {
	if _, err := Canonicalize(map[string]interface{}{"ch": make(chan int)}); err == nil {
		t.Error("expected error for unmarshalable value")
	}
}
