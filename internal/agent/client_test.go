package agent

import "testing"

func TestDecodeJSONPlain(t *testing.T) {
	var out struct {
		Classification string `json:"classification"`
	}
	res := Result{Status: StatusSuccess, Text: `{"classification":"positive"}`}
	if err := DecodeJSON(res, &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if out.Classification != "positive" {
		t.Fatalf("classification = %q", out.Classification)
	}
}

func TestDecodeJSONFenced(t *testing.T) {
	var out struct {
		Signals []string `json:"signals"`
	}
	res := Result{Status: StatusSuccess, Text: "```json\n{\"signals\":[\"budget\"]}\n```"}
	if err := DecodeJSON(res, &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if len(out.Signals) != 1 || out.Signals[0] != "budget" {
		t.Fatalf("signals = %v", out.Signals)
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	var out map[string]any
	res := Result{Status: StatusSuccess, Text: "not json"}
	if err := DecodeJSON(res, &out); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
