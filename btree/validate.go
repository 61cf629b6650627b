package btree

import (
	"fmt"
	"strings"
)

// DumpTree renders the tree structure for diagnostics: one line per page,
// indented by depth, showing node type, occupancy, and separators.
func (t *BTree) DumpTree() string {
	var sb strings.Builder
	t.dumpPage(&sb, t.pager.RootPageID(), 0)
	return sb.String()
}

func (t *BTree) dumpPage(sb *strings.Builder, id uint32, depth int) {
	indent := strings.Repeat("  ", depth)
	p, err := t.pager.GetPage(id)
	if err != nil {
		fmt.Fprintf(sb, "%s<error reading page %d: %v>\n", indent, id, err)
		return
	}

	if p.IsLeaf() {
		fmt.Fprintf(sb, "%sleaf(page=%d root=%v cells=%d next=%d)\n", indent, id, p.IsRoot(), p.NumCells(), p.NextLeaf())
		for i := uint32(0); i < p.NumCells(); i++ {
			fmt.Fprintf(sb, "%s  key=%d\n", indent, p.LeafKey(i))
		}
		return
	}

	fmt.Fprintf(sb, "%sinternal(page=%d root=%v keys=%d)\n", indent, id, p.IsRoot(), p.NumKeys())
	for i := uint32(0); i < p.NumKeys(); i++ {
		fmt.Fprintf(sb, "%s  separator=%d\n", indent, p.InternalKey(i))
		t.dumpPage(sb, p.InternalChild(i), depth+2)
	}
	fmt.Fprintf(sb, "%s  right_child\n", indent)
	t.dumpPage(sb, p.RightChild(), depth+2)
}
