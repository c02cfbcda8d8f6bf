package liveset

import (
	"encoding/json"
	"testing"
)

func TestEnvironmentCanonicalOrder(t *testing.T) {
	e := Names("c", "a", "b", "a")
	got := e.Idents()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestEnvironmentSetOperations(t *testing.T) {
	tests := []struct {
		name string
		op   func() Environment
		want []string
	}{
		{"merge", func() Environment { e := Names("a"); e.Merge(Names("b", "a")); return e }, []string{"a", "b"}},
		{"remove", func() Environment { e := Names("a", "b"); e.RemoveAll(Names("b", "z")); return e }, []string{"a"}},
		{"intersect", func() Environment { return Names("a", "b", "c").Intersect(Names("b", "c", "d")) }, []string{"b", "c"}},
		{"minus", func() Environment { return Names("a", "b", "c").Minus(Names("b")) }, []string{"a", "c"}},
		{"union", func() Environment { return Names("x").Union(Names("w")) }, []string{"w", "x"}},
		{"empty", func() Environment { var e Environment; return e }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.op()
			if !got.Equal(Names(tt.want...)) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMarksIgnoredByEquality(t *testing.T) {
	a := New(Name("x", 10))
	b := New(Name("x", 42))
	if !a.Equal(b) {
		t.Errorf("marks must not influence equality")
	}
	a.Add(Name("x", 99))
	if got := a.Paths()[0][0].Marks; len(got) != 1 || got[0] != 10 {
		t.Errorf("first marks must be kept, got %v", got)
	}
}

func TestQualifiedPath(t *testing.T) {
	p := PathName{{Name: "fmt"}, {Name: "Println"}}
	if !p.Qualified() {
		t.Errorf("expected qualified path")
	}
	if p.Key() != "fmt.Println" {
		t.Errorf("unexpected key %q", p.Key())
	}
	if p.Ident() != "Println" {
		t.Errorf("unexpected ident %q", p.Ident())
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := New(Name("b", 7), Name("a"), PathName{{Name: "m"}, {Name: "n", Marks: []int{1, 2}}})
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	want := `[[["a",[]]],[["b",[7]]],[["m",[]],["n",[1,2]]]]`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}

	var back Environment
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(e) {
		t.Errorf("round trip changed the set: %v != %v", back, e)
	}
	again, err := json.Marshal(back)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Errorf("second encoding differs: %s", again)
	}
}

func TestDecodeCanonicalises(t *testing.T) {
	enc := Encoded{{{Name: "z"}}, {{Name: "a"}}, {{Name: "z"}}}
	if enc.Canonical() {
		t.Errorf("unsorted input reported as canonical")
	}
	e := Decode(enc)
	if e.Len() != 2 {
		t.Fatalf("expected 2 paths, got %d", e.Len())
	}
	if !e.Encode().Canonical() {
		t.Errorf("encoded form must be canonical")
	}
}

func TestSegmentRejectsMalformedJSON(t *testing.T) {
	var s Segment
	if err := json.Unmarshal([]byte(`["a"]`), &s); err == nil {
		t.Errorf("expected error for a pair without marks")
	}
	if err := json.Unmarshal([]byte(`["a", "x"]`), &s); err == nil {
		t.Errorf("expected error for non-numeric marks")
	}
}
