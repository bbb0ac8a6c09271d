// Package thread reconstructs nested reply trees from flat, parent-referencing
// post collections. The tree is a pure, rebuildable projection: it is built
// fresh on every change and never mutated in place across rebuilds.
package thread

import (
	"sort"

	"github.com/MannyG3/Kettle/internal/posts"
)

// Node is a post decorated with its ordered replies.
type Node struct {
	Post     posts.Post
	Children []*Node
}

// Build converts a flat ordered post collection into a forest of reply trees.
//
// Posts without a parent reference become roots in input order; the caller's
// ordering (typically newest-first) is preserved and not re-sorted. Each
// node's children are sorted by creation time ascending, oldest first, the
// conversation ordering. A post whose parent is absent from the input is
// dropped silently: the parent was removed or not yet loaded, and an
// idempotent rebuild after the next refetch resolves the orphan naturally.
//
// Build is deterministic and side-effect-free; it never errors.
func Build(flat []posts.Post) []*Node {
	byID := make(map[string]*Node, len(flat))
	for _, post := range flat {
		byID[post.PostID] = &Node{Post: post}
	}

	roots := make([]*Node, 0, len(flat))
	for _, post := range flat {
		node := byID[post.PostID]
		if post.ParentPostID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := byID[*post.ParentPostID]
		if !ok || parent == node {
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	for _, node := range byID {
		sortChildren(node.Children)
	}
	return roots
}

func sortChildren(children []*Node) {
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].Post.CreatedAtSeconds < children[j].Post.CreatedAtSeconds
	})
}

// Flatten recovers the post records from a forest in pre-order, roots first.
// Build(Flatten(Build(posts))) equals Build(posts) for any well-formed input.
func Flatten(roots []*Node) []posts.Post {
	var flat []posts.Post
	var walk func(node *Node)
	walk = func(node *Node) {
		flat = append(flat, node.Post)
		for _, child := range node.Children {
			walk(child)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	return flat
}
