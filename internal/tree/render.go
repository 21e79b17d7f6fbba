package tree

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

func formatFraction(completed, total int) string {
	return fmt.Sprintf("%d/%d", completed, total)
}

// Renderer writes the display tree as text with box-drawing connectors.
type Renderer struct {
	writer        io.Writer
	categoryStyle lipgloss.Style
	descStyle     lipgloss.Style
	headerStyle   lipgloss.Style
}

// NewRenderer creates a renderer. Colors are used only when w is a terminal
// that supports them.
func NewRenderer(w io.Writer) *Renderer {
	lr := lipgloss.NewRenderer(w)
	return &Renderer{
		writer:        w,
		categoryStyle: lr.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		descStyle:     lr.NewStyle().Foreground(lipgloss.Color("241")),
		headerStyle:   lr.NewStyle().Bold(true),
	}
}

// Render writes the header line followed by the tree.
func (r *Renderer) Render(title, summary string, roots []*Node) {
	header := r.headerStyle.Render(title)
	if summary != "" {
		header += " " + r.descStyle.Render(summary)
	}
	_, _ = fmt.Fprintln(r.writer, header)

	if len(roots) == 0 {
		_, _ = fmt.Fprintln(r.writer, r.descStyle.Render("  (no tasks)"))
		return
	}
	for i, node := range roots {
		r.renderNode(node, "", i == len(roots)-1)
	}
}

func (r *Renderer) renderNode(node *Node, prefix string, isLast bool) {
	connector := "├─ "
	if isLast {
		connector = "└─ "
	}

	var line string
	if node.Kind == CategoryNode {
		line = r.categoryStyle.Render(node.Label) + " " + r.descStyle.Render(node.Description())
	} else {
		line = node.Item.Glyph() + " " + node.Label + "  " + r.descStyle.Render(node.Description())
	}
	_, _ = fmt.Fprintf(r.writer, "%s%s%s\n", prefix, connector, line)

	childPrefix := prefix + "│  "
	if isLast {
		childPrefix = prefix + "   "
	}
	for i, child := range node.Children {
		r.renderNode(child, childPrefix, i == len(node.Children)-1)
	}
}

// JSONNode is the machine-readable form of a Node.
type JSONNode struct {
	Type        string     `json:"type"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	ID          string     `json:"id,omitempty"`
	Glyph       string     `json:"glyph,omitempty"`
	Children    []JSONNode `json:"children,omitempty"`
}

// JSONTree is the machine-readable form of a whole tree.
type JSONTree struct {
	Summary string     `json:"summary"`
	Nodes   []JSONNode `json:"nodes"`
}

// ToJSON converts display nodes to their machine-readable form.
func ToJSON(summary string, roots []*Node) JSONTree {
	out := JSONTree{Summary: summary, Nodes: make([]JSONNode, 0, len(roots))}
	for _, n := range roots {
		out.Nodes = append(out.Nodes, toJSONNode(n))
	}
	return out
}

func toJSONNode(n *Node) JSONNode {
	jn := JSONNode{Label: n.Label, Description: n.Description()}
	if n.Kind == CategoryNode {
		jn.Type = "category"
		for _, c := range n.Children {
			jn.Children = append(jn.Children, toJSONNode(c))
		}
		return jn
	}
	jn.Type = "task"
	jn.ID = n.Item.Task.ID
	jn.Glyph = n.Item.Glyph()
	return jn
}

// RenderJSON writes the tree as indented JSON.
func RenderJSON(w io.Writer, summary string, roots []*Node) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ToJSON(summary, roots))
}
