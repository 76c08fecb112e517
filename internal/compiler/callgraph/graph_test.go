package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphIndicesStableAcrossRemoval(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(Node{Kind: NodeCompute})
	b := g.AddNode(Node{Kind: NodeCompute})
	c := g.AddNode(Node{Kind: NodeCompute})
	g.AddEdge(a, b, EdgeMove)
	g.AddEdge(b, c, EdgeMove)

	g.RemoveNode(b)

	assert.True(t, g.Alive(a))
	assert.False(t, g.Alive(b))
	assert.True(t, g.Alive(c))
	// The surviving nodes keep their indices.
	assert.Equal(t, []NodeIndex{a, c}, g.Indices())
	assert.Empty(t, g.OutEdges(a))
	assert.Empty(t, g.InEdges(c))
}

func TestGraphEdgeOrderIsInputOrder(t *testing.T) {
	g := NewGraph()
	x := g.AddNode(Node{Kind: NodeCompute})
	y := g.AddNode(Node{Kind: NodeCompute})
	consumer := g.AddNode(Node{Kind: NodeCompute})
	g.AddEdge(x, consumer, EdgeMove)
	g.AddEdge(y, consumer, EdgeSharedBorrow)

	parents := g.Parents(consumer)
	require.Equal(t, []NodeIndex{x, y}, parents)
}

func TestGraphSetEdgeSourcePreservesPosition(t *testing.T) {
	g := NewGraph()
	x := g.AddNode(Node{Kind: NodeCompute})
	y := g.AddNode(Node{Kind: NodeCompute})
	z := g.AddNode(Node{Kind: NodeCompute})
	consumer := g.AddNode(Node{Kind: NodeCompute})
	e0 := g.AddEdge(x, consumer, EdgeMove)
	g.AddEdge(y, consumer, EdgeMove)

	g.SetEdgeSource(e0, z)

	assert.Equal(t, []NodeIndex{z, y}, g.Parents(consumer))
	assert.Empty(t, g.OutEdges(x))
	assert.Len(t, g.OutEdges(z), 1)
}

func TestGraphTopoOrder(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(Node{Kind: NodeCompute})
	b := g.AddNode(Node{Kind: NodeCompute})
	c := g.AddNode(Node{Kind: NodeCompute})
	g.AddEdge(a, b, EdgeMove)
	g.AddEdge(b, c, EdgeMove)

	order, err := g.TopoOrder()
	require.NoError(t, err)
	require.Equal(t, []NodeIndex{a, b, c}, order)

	reverse, err := g.ReverseTopoOrder()
	require.NoError(t, err)
	require.Equal(t, []NodeIndex{c, b, a}, reverse)
}

func TestGraphTopoOrderDetectsCycle(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(Node{Kind: NodeCompute})
	b := g.AddNode(Node{Kind: NodeCompute})
	g.AddEdge(a, b, EdgeMove)
	g.AddEdge(b, a, EdgeMove)

	_, err := g.TopoOrder()
	require.Error(t, err)
}
