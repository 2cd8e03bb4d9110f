package model

// Explain represents the root of a PostgreSQL execution plan.
type Explain struct {
	Plan          *PlanNode
	PlanningTime  float64
	ExecutionTime float64
	Settings      map[string]string
	// Extra carries additional top-level fields that we do not interpret yet.
	Extra map[string]any
}

// PlanNode captures one node in the execution plan tree.
// Nodes are built by the parser and must not be modified afterwards.
type PlanNode struct {
	ID                 string
	Kind               Kind
	NodeType           string
	RelationName       string
	Schema             string
	Alias              string
	CTEName            string
	ParentRelationship string
	StartupCost        float64
	TotalCost          float64
	PlanRows           float64
	PlanWidth          float64
	Filter             string
	Attribute          string
	IndexName          string
	IndexCond          string
	RecheckCond        string
	JoinType           string
	Strategy           string
	Extra              map[string]any
	Children           []*PlanNode
}

// Walk visits the node and its descendants in pre-order.
func (n *PlanNode) Walk(fn func(*PlanNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Kinds returns the kinds of the subtree in pre-order.
func (n *PlanNode) Kinds() []Kind {
	var out []Kind
	n.Walk(func(node *PlanNode) {
		out = append(out, node.Kind)
	})
	return out
}

// Count returns the number of nodes in the subtree.
func (n *PlanNode) Count() int {
	total := 0
	n.Walk(func(*PlanNode) { total++ })
	return total
}

// Label builds a short human readable description such as "Seq Scan on orders (o)".
func (n *PlanNode) Label() string {
	if n == nil {
		return ""
	}
	label := n.NodeType
	if label == "" {
		label = n.Kind.String()
	}
	rel := n.RelationName
	if rel == "" {
		rel = n.CTEName
	}
	if rel != "" {
		label += " on " + rel
		if n.Alias != "" && n.Alias != rel {
			label += " (" + n.Alias + ")"
		}
	}
	if n.IndexName != "" {
		label += " using " + n.IndexName
	}
	return label
}
