package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlattenPreOrder(t *testing.T) {
	t.Parallel()

	root := &ArticleNode{Key: "R", Children: []*ArticleNode{
		{Key: "A", Children: []*ArticleNode{{Key: "A1"}, {Key: "A2"}}},
		{Key: "B"},
	}}

	var keys []CanonicalKey
	for _, node := range root.Flatten() {
		keys = append(keys, node.Key)
	}
	require.Equal(t, []CanonicalKey{"R", "A", "A1", "A2", "B"}, keys)
	require.Equal(t, 5, root.Count())
}

func TestWalkSkipsChildren(t *testing.T) {
	t.Parallel()

	root := &ArticleNode{Key: "R", Children: []*ArticleNode{
		{Key: "A", Children: []*ArticleNode{{Key: "A1"}}},
		{Key: "B"},
	}}

	var keys []CanonicalKey
	root.Walk(func(n *ArticleNode) bool {
		keys = append(keys, n.Key)
		return n.Key != "A"
	})
	require.Equal(t, []CanonicalKey{"R", "A", "B"}, keys)
}

func TestNilTree(t *testing.T) {
	t.Parallel()

	var root *ArticleNode
	require.Zero(t, root.Count())
	require.Empty(t, root.Flatten())
}
