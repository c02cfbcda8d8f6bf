package main

import (
	"encoding/json"
	"testing"
)

func TestStagePipelineTransitions(t *testing.T) {
	sp := NewStagePipeline(StageInit)
	for _, st := range []PassStage{StageAnalysis, StageModification, StageComplete} {
		if err := sp.AdvanceTo(st); err != nil {
			t.Fatalf("AdvanceTo(%s): %v", st, err)
		}
		if sp.CurrentStage() != st {
			t.Errorf("CurrentStage() = %s, want %s", sp.CurrentStage(), st)
		}
	}
	if err := sp.AdvanceTo(StageAnalysis); err == nil {
		t.Error("advanced past Complete")
	}
}

func TestStagePipelineRejectsSkips(t *testing.T) {
	sp := NewStagePipeline(StageInit)
	if err := sp.AdvanceTo(StageModification); err == nil {
		t.Error("skipped the analysis")
	}
	if sp.CurrentStage() != StageInit {
		t.Errorf("a rejected transition changed the stage to %s", sp.CurrentStage())
	}

	sp = NewStagePipeline(StageModification)
	if err := sp.ValidateStage(StageAnalysis, "checkFn"); err == nil {
		t.Error("checkFn allowed during the rewrite")
	}
	if err := sp.ValidateStage(StageModification, "expand"); err != nil {
		t.Errorf("expand rejected during the rewrite: %v", err)
	}
}

func TestPassStageJSON(t *testing.T) {
	for st := StageInit; st <= StageComplete; st++ {
		data, err := json.Marshal(st)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != `"`+st.String()+`"` {
			t.Errorf("Marshal(%s) = %s", st, data)
		}
		var back PassStage
		if err := json.Unmarshal(data, &back); err != nil || back != st {
			t.Errorf("Unmarshal(%s) = %s, %v", data, back, err)
		}
	}
	var st PassStage
	if err := json.Unmarshal([]byte(`"Linking"`), &st); err == nil {
		t.Error("accepted an unknown stage")
	}
}
