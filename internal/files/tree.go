package files

import (
	"slices"
	"strings"
)

// DefaultTreeDepth is how many levels below the root Tree shows.
const DefaultTreeDepth = 3

type treeNode struct {
	children map[string]*treeNode
	dir      bool
}

func (n *treeNode) child(name string, dir bool) *treeNode {
	if n.children == nil {
		n.children = map[string]*treeNode{}
	}
	c, ok := n.children[name]
	if !ok {
		c = &treeNode{}
		n.children[name] = c
	}
	c.dir = c.dir || dir
	return c
}

// Tree renders slash-separated relative paths as an indented outline, at
// most maxDepth levels deep. Directories end in "/". Names are sorted at
// every level, and directories deeper than maxDepth are listed without
// their contents.
func Tree(paths []string, maxDepth int) string {
	if maxDepth <= 0 {
		maxDepth = DefaultTreeDepth
	}
	root := &treeNode{}
	for _, p := range paths {
		parts := strings.Split(strings.Trim(p, "/"), "/")
		n := root
		for i, part := range parts {
			if i >= maxDepth || part == "" {
				break
			}
			n = n.child(part, i < len(parts)-1)
		}
	}
	var sb strings.Builder
	renderTree(&sb, root, 0)
	return sb.String()
}

func renderTree(sb *strings.Builder, n *treeNode, depth int) {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := n.children[name]
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(name)
		if c.dir {
			sb.WriteString("/")
		}
		sb.WriteString("\n")
		renderTree(sb, c, depth+1)
	}
}
