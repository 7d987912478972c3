package crawler

// Walk visits the tree in pre-order. Returning false from fn skips the
// node's children.
func (n *ArticleNode) Walk(fn func(*ArticleNode) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Flatten returns every node in pre-order.
func (n *ArticleNode) Flatten() []*ArticleNode {
	var out []*ArticleNode
	n.Walk(func(node *ArticleNode) bool {
		out = append(out, node)
		return true
	})
	return out
}

// Count returns the number of nodes in the tree.
func (n *ArticleNode) Count() int {
	count := 0
	n.Walk(func(*ArticleNode) bool {
		count++
		return true
	})
	return count
}
