package fulltext

import "strings"

// Dialect selects the backend-specific rendering of a parsed Query.
type Dialect int

const (
	// DialectPostgres renders to PostgreSQL's tsquery boolean syntax
	// (& | ! and parenthesised grouping, <-> for phrase adjacency via
	// plainto_tsquery-style phraseto_tsquery segments joined with <->).
	DialectPostgres Dialect = iota
	// DialectSQLiteFTS5 renders to SQLite FTS5's MATCH syntax (AND OR
	// NOT, parens, and "..." for phrases). NOT is FTS5's binary operator,
	// so negated terms are subtracted from the positive terms beside them;
	// a query made only of negated terms renders with a leading NOT, which
	// FTS5 rejects.
	DialectSQLiteFTS5
)

// Render converts a parsed Query into the backend-specific expression
// consumed by Store.FullTextSearch's FullTextQuery.Rendered field.
func Render(q *Query, dialect Dialect) string {
	if q == nil || q.Root == nil {
		return ""
	}
	switch dialect {
	case DialectSQLiteFTS5:
		return renderSQLite(q.Root)
	default:
		return renderPostgres(q.Root)
	}
}

func renderPostgres(n *Node) string {
	switch n.Kind {
	case NodeTerm:
		return n.Term
	case NodePhrase:
		return strings.Join(strings.Fields(n.Term), " <-> ")
	case NodeNot:
		return "!(" + renderPostgres(n.Children[0]) + ")"
	case NodeAnd:
		return joinPostgres(n.Children, " & ")
	case NodeOr:
		return joinPostgres(n.Children, " | ")
	default:
		return ""
	}
}

func joinPostgres(children []*Node, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = "(" + renderPostgres(c) + ")"
	}
	return strings.Join(parts, sep)
}

func renderSQLite(n *Node) string {
	switch n.Kind {
	case NodeTerm:
		return n.Term
	case NodePhrase:
		return `"` + n.Term + `"`
	case NodeNot:
		return "NOT (" + renderSQLite(n.Children[0]) + ")"
	case NodeAnd:
		var pos, neg []*Node
		for _, c := range n.Children {
			if c.Kind == NodeNot {
				neg = append(neg, c.Children[0])
			} else {
				pos = append(pos, c)
			}
		}
		if len(pos) == 0 {
			return joinSQLite(n.Children, " AND ")
		}
		out := joinSQLite(pos, " AND ")
		for _, c := range neg {
			out = "(" + out + ") NOT (" + renderSQLite(c) + ")"
		}
		return out
	case NodeOr:
		return joinSQLite(n.Children, " OR ")
	default:
		return ""
	}
}

func joinSQLite(children []*Node, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = "(" + renderSQLite(c) + ")"
	}
	return strings.Join(parts, sep)
}
