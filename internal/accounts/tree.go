package accounts

import (
	"fmt"
	"io"
	"strings"

	"github.com/cleared-dev/ledger/internal/model"
)

// Node is one account with its children, in registry order.
type Node struct {
	Account  model.Account
	Children []*Node
}

// BuildTree arranges accounts into a forest. Accounts whose parent is not
// in the slice are treated as roots.
func BuildTree(accounts []model.Account) []*Node {
	nodes := make(map[string]*Node, len(accounts))
	for _, a := range accounts {
		nodes[a.ID] = &Node{Account: a}
	}

	var roots []*Node
	for _, a := range accounts {
		n := nodes[a.ID]
		if parent, ok := nodes[a.ParentID]; ok && a.ParentID != "" {
			parent.Children = append(parent.Children, n)
			continue
		}
		roots = append(roots, n)
	}
	return roots
}

// Descendants returns the ids of every account below rootID.
func Descendants(accounts []model.Account, rootID string) []string {
	children := make(map[string][]string)
	for _, a := range accounts {
		if a.ParentID != "" {
			children[a.ParentID] = append(children[a.ParentID], a.ID)
		}
	}

	var out []string
	seen := map[string]bool{rootID: true}
	queue := append([]string(nil), children[rootID]...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		queue = append(queue, children[cur]...)
	}
	return out
}

// Depth returns the number of ancestors of accountID.
func Depth(accounts []model.Account, accountID string) int {
	parents := make(map[string]string, len(accounts))
	for _, a := range accounts {
		parents[a.ID] = a.ParentID
	}
	depth := 0
	for cur := parents[accountID]; cur != "" && depth <= len(accounts); cur = parents[cur] {
		depth++
	}
	return depth
}

// WriteTree renders the forest as an indented outline.
func WriteTree(w io.Writer, roots []*Node) error {
	var walk func(n *Node, depth int) error
	walk = func(n *Node, depth int) error {
		a := n.Account
		status := ""
		if !a.IsActive {
			status = " (inactive)"
		}
		if _, err := fmt.Fprintf(w, "%s%s  %s [%s]%s\n", strings.Repeat("  ", depth), a.Code, a.Name, a.Type, status); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := walk(r, 0); err != nil {
			return err
		}
	}
	return nil
}
