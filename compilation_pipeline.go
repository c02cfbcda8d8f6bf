// compilation_pipeline.go - Explicit pass stages with validation
package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// PassStage is the stage of the two pass rewrite, as stored in the side-car
type PassStage int

const (
	StageInit PassStage = iota
	StageAnalysis
	StageModification
	StageComplete
)

func (s PassStage) String() string {
	switch s {
	case StageInit:
		return "Init"
	case StageAnalysis:
		return "Analysis"
	case StageModification:
		return "Modification"
	case StageComplete:
		return "Complete"
	default:
		return fmt.Sprintf("Unknown Stage %d", s)
	}
}

// ParseStage is the inverse of String
func ParseStage(s string) (PassStage, error) {
	for st := StageInit; st <= StageComplete; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return StageInit, fmt.Errorf("unknown stage %q", s)
}

func (s PassStage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PassStage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	st, err := ParseStage(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// StagePipeline tracks the current stage and validates state transitions
type StagePipeline struct {
	currentStage PassStage
	stages       []PassStage // History of stages
}

// NewStagePipeline starts a pipeline at the given stage, which is the
// stage read back from the side-car or StageInit
func NewStagePipeline(start PassStage) *StagePipeline {
	return &StagePipeline{
		currentStage: start,
		stages:       []PassStage{start},
	}
}

func validTransition(from, to PassStage) bool {
	switch from {
	case StageInit:
		return to == StageAnalysis
	case StageAnalysis:
		return to == StageModification
	case StageModification:
		return to == StageComplete
	}
	return false // Can't advance from complete
}

func (sp *StagePipeline) AdvanceTo(stage PassStage) error {
	if !validTransition(sp.currentStage, stage) {
		if VerboseMode {
			fmt.Fprintf(os.Stderr, "Stage history:\n")
			for i, s := range sp.stages {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, s)
			}
		}
		return FatalError(fmt.Sprintf("invalid stage transition: %s -> %s", sp.currentStage, stage), SourceLocation{})
	}

	sp.currentStage = stage
	sp.stages = append(sp.stages, stage)

	trace("pipeline advanced", "stage", stage.String())
	return nil
}

func (sp *StagePipeline) CurrentStage() PassStage {
	return sp.currentStage
}

// ValidateStage fails when operation is attempted outside of the expected stage
func (sp *StagePipeline) ValidateStage(expected PassStage, operation string) error {
	if sp.currentStage != expected {
		return FatalError(fmt.Sprintf("attempted '%s' at stage %s, expected %s", operation, sp.currentStage, expected), SourceLocation{})
	}
	return nil
}

// Checkpoint creates a named checkpoint for debugging
func (sp *StagePipeline) Checkpoint(name string) {
	trace("pipeline checkpoint", "name", name, "stage", sp.currentStage.String())
}
