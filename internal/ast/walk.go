package ast

// Walk traverses a statement list in depth-first, source order. For each
// node it calls fn(node); if fn returns false the node's children are
// not visited. Traversal is read-only: passes that rewrite the tree
// build new nodes instead of mutating in place.
func Walk(nodes []Stmt, fn func(Node) bool) {
	for _, n := range nodes {
		walkStmt(n, fn)
	}
}

func walkStmt(s Stmt, fn func(Node) bool) {
	if s == nil || !fn(s) {
		return
	}
	switch n := s.(type) {
	case *TextStmt, *RawStmt, *BreakStmt, *ContinueStmt:
		// no children
	case *OutputStmt:
		walkExpr(n.Expr, fn)
	case *IfStmt:
		walkExpr(n.Cond, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *ForStmt:
		walkExpr(n.Iter, fn)
		walkExpr(n.Filter, fn)
		Walk(n.Body, fn)
		Walk(n.Empty, fn)
	case *MatchStmt:
		walkExpr(n.Subject, fn)
		for _, c := range n.Cases {
			for _, v := range c.Values {
				walkExpr(v, fn)
			}
			Walk(c.Body, fn)
		}
		Walk(n.Else, fn)
	case *BlockStmt:
		Walk(n.Body, fn)
	case *ExtendsStmt:
		walkExpr(n.Name, fn)
	case *IncludeStmt:
		walkExpr(n.Name, fn)
	case *EmbedStmt:
		walkExpr(n.Name, fn)
		for _, b := range n.Overrides {
			walkStmt(b, fn)
		}
	case *SetStmt:
		walkExpr(n.Value, fn)
	case *MacroStmt:
		for _, d := range n.Defaults {
			walkExpr(d, fn)
		}
		Walk(n.Body, fn)
	case *SpacelessStmt:
		Walk(n.Body, fn)
	}
}

func walkExpr(e Expr, fn func(Node) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *StrLit, *NumLit, *BoolLit, *NoneLit, *Ident:
		// no children
	case *ListLit:
		for _, el := range n.Elems {
			walkExpr(el, fn)
		}
	case *MapLit:
		for i := range n.Keys {
			walkExpr(n.Keys[i], fn)
			walkExpr(n.Values[i], fn)
		}
	case *RangeLit:
		walkExpr(n.Start, fn)
		walkExpr(n.Stop, fn)
		walkExpr(n.Step, fn)
	case *AttrExpr:
		walkExpr(n.Target, fn)
	case *IndexExpr:
		walkExpr(n.Target, fn)
		walkExpr(n.Index, fn)
	case *BinaryExpr:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *UnaryExpr:
		walkExpr(n.Expr, fn)
	case *CoalesceExpr:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *TernaryExpr:
		walkExpr(n.Cond, fn)
		walkExpr(n.Then, fn)
		walkExpr(n.Else, fn)
	case *GroupExpr:
		walkExpr(n.Expr, fn)
	case *CallExpr:
		walkExpr(n.Callee, fn)
		for _, a := range n.Args {
			walkExpr(a, fn)
		}
	case *FilterExpr:
		walkExpr(n.Value, fn)
		for _, a := range n.Args {
			walkExpr(a, fn)
		}
	}
}
