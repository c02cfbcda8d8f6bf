// Completion: 100% - Spanning tree scheduler
package main

import (
	"fmt"
	"strings"

	"github.com/willf/bitset"
	"github.com/xyproto/autopar/internal/liveset"
)

// ScheduleKind names the three kinds of schedule entries
type ScheduleKind int

const (
	ScheduleNode  ScheduleKind = iota // a statement
	ScheduleBlock                     // a statement or block with inner schedules
	ScheduleSync                      // a message from Source to Target
)

func (k ScheduleKind) String() string {
	switch k {
	case ScheduleNode:
		return "Node"
	case ScheduleBlock:
		return "Block"
	case ScheduleSync:
		return "SyncTo"
	default:
		return "Unknown"
	}
}

// ScheduleTree is one entry of a schedule. Node and Block entries run a
// dependency node after receiving from every prereq, then continue with
// their children. SyncTo entries send to a node in another tree.
type ScheduleTree struct {
	Kind ScheduleKind

	Node    DependencyNode
	Index   int      // position of Node in its level
	Weight  int      // weight of the path from the tree root to Node
	Prereqs []StmtId // sources of the messages Node waits for
	// Children are the nodes placed below Node and its SyncTo entries,
	// in placement order
	Children []*ScheduleTree
	// Inner holds one schedule per nested block, left to right
	Inner []Schedule

	Target, Source StmtId
	Env            liveset.Environment
}

// Schedule is a forest of spanning trees over one block level, in the
// order of their root statements
type Schedule []*ScheduleTree

// ID returns the statement id of a Node or Block entry
func (t *ScheduleTree) ID() StmtId {
	if t.Kind == ScheduleSync {
		return t.Target
	}
	return t.Node.StmtID()
}

// BuildSchedule grows one spanning tree per independent node. Every other
// node is attached below the heaviest of its dependencies; the remaining
// dependencies send it a message, unless they already ran before it on
// the path from its tree root.
func BuildSchedule(tree DependencyTree) (Schedule, error) {
	var sched Schedule
	placed := make([]*ScheduleTree, len(tree))
	// up is the index of the parent of every placed node, -1 for a root
	up := make([]int, len(tree))
	pending := bitset.New(uint(len(tree)))

	for i, n := range tree {
		up[i] = -1
		if len(n.Deps()) > 0 {
			pending.Set(uint(i))
			continue
		}
		entry, err := newScheduleEntry(n, i, PerformanceMetric(n))
		if err != nil {
			return nil, err
		}
		placed[i] = entry
		sched = append(sched, entry)
	}

	for pending.Any() {
		progress := false
		for i, ok := pending.NextSet(0); ok; i, ok = pending.NextSet(i + 1) {
			n := tree[i]
			primary := -1
			ready := true
			for _, dep := range n.Deps() {
				if dep < 0 || dep >= len(tree) || placed[dep] == nil {
					ready = false
					break
				}
				// the first match wins ties
				if primary < 0 || placed[dep].Weight > placed[primary].Weight {
					primary = dep
				}
			}
			if !ready {
				continue
			}

			parent := placed[primary]
			entry, err := newScheduleEntry(n, int(i), parent.Weight+PerformanceMetric(n))
			if err != nil {
				return nil, err
			}
			for _, dep := range n.Deps() {
				if dep == primary || above(up, dep, primary) {
					continue
				}
				src := placed[dep]
				src.Children = append(src.Children, &ScheduleTree{
					Kind:   ScheduleSync,
					Target: n.StmtID(),
					Source: src.Node.StmtID(),
				})
				entry.Prereqs = append(entry.Prereqs, src.Node.StmtID())
			}
			parent.Children = append(parent.Children, entry)
			placed[i] = entry
			up[i] = primary
			pending.Clear(i)
			progress = true
		}
		if !progress {
			return nil, CycleError(int(pending.Count()), SourceLocation{})
		}
	}
	return sched, nil
}

// above reports whether a is b or one of its ancestors
func above(up []int, a, b int) bool {
	for cur := b; cur >= 0; cur = up[cur] {
		if cur == a {
			return true
		}
	}
	return false
}

func newScheduleEntry(n DependencyNode, index, weight int) (*ScheduleTree, error) {
	entry := &ScheduleTree{Kind: ScheduleNode, Node: n, Index: index, Weight: weight}
	switch node := n.(type) {
	case *BlockNode:
		inner, err := BuildSchedule(node.Children)
		if err != nil {
			return nil, err
		}
		entry.Kind = ScheduleBlock
		entry.Inner = []Schedule{inner}
	case *ExprBlockNode:
		entry.Kind = ScheduleBlock
		for _, child := range node.Children {
			block, ok := child.(*BlockNode)
			if !ok {
				return nil, AnalysisError(fmt.Sprintf("statement %s owns a %s node", node.StmtID(), child.Kind()), SourceLocation{})
			}
			inner, err := BuildSchedule(block.Children)
			if err != nil {
				return nil, err
			}
			entry.Inner = append(entry.Inner, inner)
		}
	}
	return entry, nil
}

// Nodes returns the Node and Block entries of the tree rooted at t in the
// order they run: depth first, children in placement order
func (t *ScheduleTree) Nodes() []*ScheduleTree {
	var out []*ScheduleTree
	var walk func(e *ScheduleTree)
	walk = func(e *ScheduleTree) {
		if e.Kind == ScheduleSync {
			return
		}
		out = append(out, e)
		for _, c := range e.Children {
			walk(c)
		}
	}
	walk(t)
	return out
}

// Find returns the Node or Block entry for id
func (s Schedule) Find(id StmtId) *ScheduleTree {
	for _, root := range s {
		for _, e := range root.Nodes() {
			if e.ID() == id {
				return e
			}
		}
	}
	return nil
}

// Dump renders the schedule for the plan command
func (s Schedule) Dump() string {
	var sb strings.Builder
	s.dump(&sb, 0)
	return sb.String()
}

func (s Schedule) dump(sb *strings.Builder, depth int) {
	for i, root := range s {
		fmt.Fprintf(sb, "%stree %d:\n", strings.Repeat("  ", depth), i)
		root.dump(sb, depth+1)
	}
}

func (t *ScheduleTree) dump(sb *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	if t.Kind == ScheduleSync {
		fmt.Fprintf(sb, "%ssync %s -> %s %v\n", indent, t.Source, t.Target, t.Env)
		return
	}
	fmt.Fprintf(sb, "%s%s %s weight=%d prereqs=%v\n", indent, t.Kind, t.Node.StmtID(), t.Weight, t.Prereqs)
	for i, inner := range t.Inner {
		fmt.Fprintf(sb, "%s  block %d:\n", indent, i)
		inner.dump(sb, depth+2)
	}
	for _, c := range t.Children {
		c.dump(sb, depth+1)
	}
}
