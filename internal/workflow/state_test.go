package workflow

import (
	"testing"
	"time"
)

func TestTransitionTableIsLinear(t *testing.T) {
	order := []Status{
		StatusResearching, StatusStructuring, StatusFactchecking,
		StatusFinalizing, StatusDraftReady,
	}
	for i := 0; i < len(order)-1; i++ {
		next, ok := order[i].Next()
		if !ok {
			t.Fatalf("no transition from %s", order[i])
		}
		if next != order[i+1] {
			t.Fatalf("transition from %s = %s, want %s", order[i], next, order[i+1])
		}
	}
	if _, ok := StatusDraftReady.Next(); ok {
		t.Fatal("terminal status has a transition")
	}
}

func TestAdvanceRejectsTerminal(t *testing.T) {
	state := &State{Status: StatusDraftReady}
	if err := state.Advance(); err == nil {
		t.Fatal("Advance from draft_ready succeeded")
	}
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	state := &State{
		ID:     "wf-1",
		Input:  Input{ItemID: "item-1", Title: "T", Featured: true},
		Status: StatusFactchecking,
	}
	state.RecordResult(StageResearch, "notes", time.Now())

	encoded, err := state.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeState(encoded, 7)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if decoded.Status != StatusFactchecking {
		t.Errorf("status = %s", decoded.Status)
	}
	if decoded.Revision != 7 {
		t.Errorf("revision = %d, want 7", decoded.Revision)
	}
	if _, ok := decoded.Result(StageResearch); !ok {
		t.Error("stage result lost in roundtrip")
	}
	if !decoded.Input.Featured {
		t.Error("featured flag lost in roundtrip")
	}
}

func TestDecodeRejectsUnknownStatus(t *testing.T) {
	if _, err := DecodeState(`{"status":"percolating"}`, 1); err == nil {
		t.Fatal("unknown status accepted")
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := ParseStatus(" Researching "); !ok || status != StatusResearching {
		t.Fatalf("ParseStatus = %s, %v", status, ok)
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Fatal("bogus status parsed")
	}
}

func TestStagePromptRequiresPriorResults(t *testing.T) {
	state := &State{Input: Input{ItemID: "i", Title: "T", URL: "https://e"}}
	if _, _, err := stagePrompt(StageStructure, state); err == nil {
		t.Fatal("structure prompt built without research result")
	}
	state.RecordResult(StageResearch, "notes", time.Now())
	if _, user, err := stagePrompt(StageStructure, state); err != nil || user == "" {
		t.Fatalf("structure prompt: %q, %v", user, err)
	}
}
