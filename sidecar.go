// Completion: 100% - Persistent state between the analysis and rewrite passes
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// StateFileName is the side-car holding the analysis between the passes
const StateFileName = "autopar.state.json"

// FunctionRecord is the analysis of one annotated function
type FunctionRecord struct {
	IdentName       string      `json:"identName"`
	IdentCtxt       []int       `json:"identCtxt"`
	OutputType      string      `json:"outputType"`
	IsUnsafe        bool        `json:"isUnsafe"`
	CalledFunctions []string    `json:"calledFunctions"`
	InputTypes      []string    `json:"inputTypes"`
	EncodedDepTree  EncodedTree `json:"encodedDepTree"`
}

// PassState is the content of the side-car
type PassState struct {
	Stage       PassStage        `json:"stage"`
	LinterLevel string           `json:"linterLevel"`
	Functions   []FunctionRecord `json:"functions"`
}

// NewPassState returns the state of a first pass
func NewPassState(linterLevel string) *PassState {
	return &PassState{Stage: StageAnalysis, LinterLevel: linterLevel, Functions: []FunctionRecord{}}
}

// Record appends or replaces the record of a function
func (s *PassState) Record(rec FunctionRecord) {
	for i := range s.Functions {
		if s.Functions[i].IdentName == rec.IdentName {
			s.Functions[i] = rec
			return
		}
	}
	s.Functions = append(s.Functions, rec)
}

// Lookup finds the record of a function by name
func (s *PassState) Lookup(name string) (*FunctionRecord, bool) {
	for i := range s.Functions {
		if s.Functions[i].IdentName == name {
			return &s.Functions[i], true
		}
	}
	return nil, false
}

// Names returns the recorded function names in sorted order
func (s *PassState) Names() []string {
	names := make([]string, len(s.Functions))
	for i, f := range s.Functions {
		names[i] = f.IdentName
	}
	sort.Strings(names)
	return names
}

func statePath(dir string) string {
	return filepath.Join(dir, StateFileName)
}

// LoadState reads the side-car of dir. A missing side-car is not an
// error: ok is false and the caller starts a first pass.
func LoadState(dir string) (state *PassState, ok bool, err error) {
	path := statePath(dir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, PersistenceError(path, err)
	}
	state = &PassState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, false, PersistenceError(path, err)
	}
	for _, f := range state.Functions {
		if err := f.EncodedDepTree.Validate(); err != nil {
			return nil, false, PersistenceError(path, fmt.Errorf("function %s: %w", f.IdentName, err))
		}
	}
	return state, true, nil
}

// SaveState writes the side-car of dir. The file is replaced atomically so
// an interrupted pass never leaves half a state behind.
func SaveState(dir string, state *PassState) error {
	path := statePath(dir)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return PersistenceError(path, err)
	}
	tmp, err := os.CreateTemp(dir, StateFileName+".*")
	if err != nil {
		return PersistenceError(path, err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return PersistenceError(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return PersistenceError(path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return PersistenceError(path, err)
	}
	return nil
}

// RemoveState deletes the side-car of dir, if any
func RemoveState(dir string) error {
	path := statePath(dir)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return PersistenceError(path, err)
	}
	return nil
}
