package main

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/xyproto/autopar/internal/liveset"
)

func TestEncodeTreeRoundTrip(t *testing.T) {
	src := `package p

func nested(xs []int, limit int) int {
	total := 0
	for i, x := range xs {
		if i > limit {
			break
		}
		total += x
	}
	return total
}
`
	tree := analyse(t, src, "nested")
	enc := EncodeTree(tree)
	if err := enc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	data, err := json.Marshal(enc)
	if err != nil {
		t.Fatal(err)
	}
	var back EncodedTree
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, enc) {
		t.Errorf("round trip changed the tree:\n%s\n%s", data, mustJSON(t, back))
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestReplaceDependenciesIdentity(t *testing.T) {
	tree := analyse(t, independentSrc, "work")
	before := tree.Dump()
	if err := ReplaceDependencies(tree, EncodeTree(tree)); err != nil {
		t.Fatal(err)
	}
	if after := tree.Dump(); after != before {
		t.Errorf("tree changed:\n%s\n%s", before, after)
	}
}

func TestReplaceDependenciesOverwrites(t *testing.T) {
	tree := analyse(t, independentSrc, "work")
	patch := EncodeTree(tree)
	patch[6].Deps = []int{0, 1, 2}
	patch[6].In = liveset.Names("a", "b", "c").Encode()
	if err := ReplaceDependencies(tree, patch); err != nil {
		t.Fatal(err)
	}
	if got := tree[6].Deps(); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("deps = %v", got)
	}
	if in, _ := tree[6].Env(); !in.Equal(liveset.Names("a", "b", "c")) {
		t.Errorf("in = %v", in)
	}
}

func TestReplaceDependenciesMismatch(t *testing.T) {
	tree := analyse(t, independentSrc, "work")
	patch := EncodeTree(tree)

	short := patch[:len(patch)-1]
	if err := ReplaceDependencies(tree, short); err == nil {
		t.Error("expected an error for a shorter recorded tree")
	}

	moved := EncodeTree(tree)
	moved[2].ID.Lo++
	err := ReplaceDependencies(tree, moved)
	if err == nil {
		t.Fatal("expected an error for a moved statement")
	}
	if ce, ok := asCompilerError(err); !ok || ce.Category != CategoryAnalysis {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		tree EncodedTree
	}{
		{"forward dependency", EncodedTree{{Kind: "Expr", Deps: []int{1}}, {Kind: "Expr"}}},
		{"self dependency", EncodedTree{{Kind: "Expr", Deps: []int{0}}}},
		{"unsorted dependencies", EncodedTree{{Kind: "Expr"}, {Kind: "Expr"}, {Kind: "Expr", Deps: []int{1, 0}}}},
		{"unknown kind", EncodedTree{{Kind: "Loop"}}},
		{"declaration with dependencies", EncodedTree{{Kind: "Expr"}, {Kind: "Mac", Deps: []int{0}}}},
		{"unsorted environment", EncodedTree{{Kind: "Expr", In: liveset.Encoded{{{Name: "b"}}, {{Name: "a"}}}}}},
		{"nested", EncodedTree{{Kind: "Block", Children: EncodedTree{{Kind: "Expr", Deps: []int{3}}}}}},
	}
	for _, tt := range tests {
		if err := tt.tree.Validate(); err == nil {
			t.Errorf("%s: Validate accepted the tree", tt.name)
		}
	}
}
