// Completion: 100% - Persistent form of dependency trees
package main

import (
	"encoding/json"
	"fmt"

	"github.com/xyproto/autopar/internal/liveset"
)

// EncodedNode is a dependency node without AST pointers. Environments are
// kept in their serialised form.
type EncodedNode struct {
	Kind     string          `json:"kind"`
	ID       StmtId          `json:"id"`
	Deps     []int           `json:"deps"`
	In       liveset.Encoded `json:"in"`
	Out      liveset.Encoded `json:"out"`
	Children EncodedTree     `json:"children,omitempty"`
}

// EncodedTree is the persistent form of a DependencyTree
type EncodedTree []EncodedNode

// EncodeTree deep copies a tree into its encoded form
func EncodeTree(tree DependencyTree) EncodedTree {
	out := make(EncodedTree, len(tree))
	for i, n := range tree {
		in, o := n.Env()
		out[i] = EncodedNode{
			Kind: n.Kind().String(),
			ID:   n.StmtID(),
			Deps: append([]int{}, n.Deps()...),
			In:   in.Encode(),
			Out:  o.Encode(),
		}
		if children := childrenOf(n); len(children) > 0 {
			out[i].Children = EncodeTree(children)
		}
	}
	return out
}

// Validate checks the structural invariants of an encoded tree: known
// kinds, dependencies pointing backwards and canonical environments.
func (t EncodedTree) Validate() error {
	for i, n := range t {
		kind, err := parseNodeKind(n.Kind)
		if err != nil {
			return err
		}
		for j, d := range n.Deps {
			if d < 0 || d >= i {
				return fmt.Errorf("node %d (%s): dependency %d does not precede it", i, n.ID, d)
			}
			if j > 0 && n.Deps[j-1] >= d {
				return fmt.Errorf("node %d (%s): dependencies %v not sorted", i, n.ID, n.Deps)
			}
		}
		if kind == KindMac && len(n.Deps) > 0 {
			return fmt.Errorf("node %d (%s): declaration with dependencies", i, n.ID)
		}
		if !n.In.Canonical() || !n.Out.Canonical() {
			return fmt.Errorf("node %d (%s): environment not in canonical order", i, n.ID)
		}
		if err := n.Children.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON keeps the deps field an array for empty trees
func (t EncodedTree) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]EncodedNode(t))
}

// ReplaceDependencies overwrites the dependencies and environments of base
// with the ones of patch. Both trees must have the same shape and the same
// statement ids; a mismatch means the source changed between the passes.
func ReplaceDependencies(base DependencyTree, patch EncodedTree) error {
	if len(base) != len(patch) {
		return SourceChangedError(
			fmt.Sprintf("dependency tree has %d nodes, the recorded analysis has %d", len(base), len(patch)),
			SourceLocation{})
	}
	for i, n := range base {
		p := patch[i]
		if n.Kind().String() != p.Kind {
			return SourceChangedError(
				fmt.Sprintf("statement %s is %s, the recorded analysis has %s", n.StmtID(), n.Kind(), p.Kind),
				SourceLocation{})
		}
		if n.StmtID() != p.ID {
			return SourceChangedError(
				fmt.Sprintf("statement %s does not match the recorded statement %s", n.StmtID(), p.ID),
				SourceLocation{})
		}
		n.setDeps(p.Deps)
		n.setEnv(liveset.Decode(p.In), liveset.Decode(p.Out))
		if err := ReplaceDependencies(childrenOf(n), p.Children); err != nil {
			return err
		}
	}
	return nil
}
