package optimizer

import (
	"strings"

	"github.com/lbliii/kida/internal/ast"
)

// coalescePass merges runs of adjacent literal text into a single
// statement, so a run renders as one buffer write instead of several.
// Adjacency commonly appears after deadcode removes the statements that
// separated two text nodes.
type coalescePass struct {
	stats PassStats
}

func (p *coalescePass) stmts(list []ast.Stmt) []ast.Stmt {
	recursed := spliceStmts(list, p.stmt)
	return p.mergeText(recursed)
}

func (p *coalescePass) stmt(s ast.Stmt) ([]ast.Stmt, bool) {
	if ns, ok := applyToBodies(s, p.stmts); ok {
		return []ast.Stmt{ns}, true
	}
	return nil, false
}

func (p *coalescePass) mergeText(list []ast.Stmt) []ast.Stmt {
	runStart := -1
	for i, s := range list {
		if _, ok := s.(*ast.TextStmt); ok {
			if runStart >= 0 {
				// Found a second adjacent text node, rebuild.
				return p.rebuild(list, runStart)
			}
			runStart = i
		} else {
			runStart = -1
		}
	}
	return list
}

// rebuild merges from the first multi-node run onwards. first is the
// index of the text node opening that run.
func (p *coalescePass) rebuild(list []ast.Stmt, first int) []ast.Stmt {
	out := append([]ast.Stmt(nil), list[:first]...)
	i := first
	for i < len(list) {
		ts, ok := list[i].(*ast.TextStmt)
		if !ok {
			out = append(out, list[i])
			i++
			continue
		}
		j := i + 1
		for j < len(list) {
			if _, ok := list[j].(*ast.TextStmt); !ok {
				break
			}
			j++
		}
		if j == i+1 {
			out = append(out, ts)
			i = j
			continue
		}
		var sb strings.Builder
		for k := i; k < j; k++ {
			sb.WriteString(list[k].(*ast.TextStmt).Text)
		}
		merged := &ast.TextStmt{
			BaseStmt: ast.MakeBaseStmt(list[i].Pos(), list[j-1].End()),
			Text:     sb.String(),
		}
		p.stats.Changes += j - i - 1
		out = append(out, merged)
		i = j
	}
	return out
}
