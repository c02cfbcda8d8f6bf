// Completion: 100% - Dependency tree data model complete
package main

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/token"
	"strings"

	"github.com/xyproto/autopar/internal/liveset"
)

// StmtId identifies a statement or block by its byte span in the file.
// Spans are file relative so they survive a re-parse of unchanged source.
type StmtId struct {
	Lo, Hi int
}

func (id StmtId) String() string {
	return fmt.Sprintf("%d_%d", id.Lo, id.Hi)
}

// MarshalJSON writes the id as [lo, hi]
func (id StmtId) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{id.Lo, id.Hi})
}

// UnmarshalJSON reads an id written as [lo, hi]
func (id *StmtId) UnmarshalJSON(data []byte) error {
	var pair [2]int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("statement id: %v", err)
	}
	id.Lo, id.Hi = pair[0], pair[1]
	return nil
}

// spanOf computes the StmtId of a node inside file
func spanOf(file *token.File, n ast.Node) StmtId {
	return spanRange(file, n.Pos(), n.End())
}

func spanRange(file *token.File, lo, hi token.Pos) StmtId {
	if file == nil || !lo.IsValid() || !hi.IsValid() {
		return StmtId{}
	}
	return StmtId{Lo: file.Offset(lo), Hi: file.Offset(hi)}
}

// NodeKind names the four variants of DependencyNode
type NodeKind int

const (
	KindExpr NodeKind = iota
	KindBlock
	KindExprBlock
	KindMac
)

func (k NodeKind) String() string {
	switch k {
	case KindExpr:
		return "Expr"
	case KindBlock:
		return "Block"
	case KindExprBlock:
		return "ExprBlock"
	case KindMac:
		return "Mac"
	default:
		return "Unknown"
	}
}

func parseNodeKind(s string) (NodeKind, error) {
	switch s {
	case "Expr":
		return KindExpr, nil
	case "Block":
		return KindBlock, nil
	case "ExprBlock":
		return KindExprBlock, nil
	case "Mac":
		return KindMac, nil
	}
	return 0, fmt.Errorf("unknown dependency node kind %q", s)
}

// DependencyNode is one entry of a DependencyTree. The set of
// implementations is closed: *ExprNode, *BlockNode, *ExprBlockNode, *MacNode.
type DependencyNode interface {
	Kind() NodeKind
	StmtID() StmtId
	// Stmt is the statement with its inner blocks erased, nil for blocks
	Stmt() ast.Stmt
	Deps() []int
	Env() (in, out liveset.Environment)

	setDeps(deps []int)
	setEnv(in, out liveset.Environment)
	placement() *placement
}

// DependencyTree is an ordered sequence of nodes in source order. Every
// dependency of node i is an index smaller than i at the same level.
type DependencyTree []DependencyNode

// placement records facts that constrain where a statement may run
type placement struct {
	exits  bool // contains return, goto, fallthrough or an escaping break/continue
	pinned bool // contains defer or a label
}

type nodeBase struct {
	id   StmtId
	deps []int
	in   liveset.Environment
	out  liveset.Environment
	pl   placement
}

func (n *nodeBase) StmtID() StmtId { return n.id }
func (n *nodeBase) Deps() []int    { return n.deps }
func (n *nodeBase) Env() (in, out liveset.Environment) {
	return n.in, n.out
}
func (n *nodeBase) setDeps(deps []int) {
	n.deps = append(n.deps[:0:0], deps...)
}
func (n *nodeBase) setEnv(in, out liveset.Environment) {
	n.in, n.out = in.Clone(), out.Clone()
}
func (n *nodeBase) placement() *placement { return &n.pl }

// ExprNode is a statement without nested blocks
type ExprNode struct {
	nodeBase
	stmt ast.Stmt
}

func (n *ExprNode) Kind() NodeKind { return KindExpr }
func (n *ExprNode) Stmt() ast.Stmt { return n.stmt }

// BlockNode is a block that is not a statement on its own: the body of an
// if, a loop, a case clause or a bare block.
type BlockNode struct {
	nodeBase
	Children DependencyTree
}

func (n *BlockNode) Kind() NodeKind { return KindBlock }
func (n *BlockNode) Stmt() ast.Stmt { return nil }

// ExprBlockNode is a statement owning one or more blocks. Children holds
// one *BlockNode per block in left to right order; stmt has those blocks
// erased and slots records their ids.
type ExprBlockNode struct {
	nodeBase
	stmt     ast.Stmt
	slots    []StmtId
	Children DependencyTree
}

func (n *ExprBlockNode) Kind() NodeKind { return KindExprBlock }
func (n *ExprBlockNode) Stmt() ast.Stmt { return n.stmt }

// MacNode is an opaque declaration. It never has dependencies and is
// always placed sequentially.
type MacNode struct {
	nodeBase
	stmt ast.Stmt
}

func (n *MacNode) Kind() NodeKind { return KindMac }
func (n *MacNode) Stmt() ast.Stmt { return n.stmt }

// childrenOf returns the nested tree of a node, nil for leaves
func childrenOf(n DependencyNode) DependencyTree {
	switch node := n.(type) {
	case *BlockNode:
		return node.Children
	case *ExprBlockNode:
		return node.Children
	case *ExprNode, *MacNode:
		return nil
	}
	panic(fmt.Sprintf("unknown dependency node %T", n))
}

// suffix returns copies of the nodes from index k on, as a level of its
// own. Dependencies on the dropped nodes are removed, the others renumbered.
func (tree DependencyTree) suffix(k int) DependencyTree {
	out := make(DependencyTree, 0, len(tree)-k)
	for _, n := range tree[k:] {
		var c DependencyNode
		switch node := n.(type) {
		case *ExprNode:
			cp := *node
			c = &cp
		case *BlockNode:
			cp := *node
			c = &cp
		case *ExprBlockNode:
			cp := *node
			c = &cp
		case *MacNode:
			cp := *node
			c = &cp
		default:
			panic(fmt.Sprintf("unknown dependency node %T", n))
		}
		var deps []int
		for _, d := range n.Deps() {
			if d >= k {
				deps = append(deps, d-k)
			}
		}
		c.setDeps(deps)
		out = append(out, c)
	}
	return out
}

// PerformanceMetric is the weight of a node for the scheduler: one per
// statement, blocks add the weight of their content.
func PerformanceMetric(n DependencyNode) int {
	switch node := n.(type) {
	case *ExprNode, *MacNode:
		return 1
	case *BlockNode:
		return 1 + treeMetric(node.Children)
	case *ExprBlockNode:
		return 1 + treeMetric(node.Children)
	}
	panic(fmt.Sprintf("unknown dependency node %T", n))
}

func treeMetric(tree DependencyTree) int {
	total := 0
	for _, child := range tree {
		total += PerformanceMetric(child)
	}
	return total
}

// Dump renders a tree for the plan command and for test failures
func (tree DependencyTree) Dump() string {
	var sb strings.Builder
	tree.dump(&sb, 0)
	return sb.String()
}

func (tree DependencyTree) dump(sb *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	for i, n := range tree {
		in, out := n.Env()
		fmt.Fprintf(sb, "%s%d %s %s deps=%v in=%v out=%v\n", indent, i, n.Kind(), n.StmtID(), n.Deps(), in, out)
		if children := childrenOf(n); len(children) > 0 {
			children.dump(sb, depth+1)
		}
	}
}
