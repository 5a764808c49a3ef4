// Package rules evaluates named condition→adjustment rules against a
// percentile-enriched subject record. Conditions are compiled once into a
// small expression tree at load time; evaluation is a pure tree walk with
// tri-state results (matched / non-evaluable) so a missing field degrades
// coverage instead of silently matching false.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expr is a compiled condition node. Eval returns (matched, evaluable):
// a sub-expression over an absent field is non-evaluable, not false.
type Expr interface {
	Eval(fields map[string]any) (matched, evaluable bool)
}

// Comparison is `field OP literal` with OP in < <= > >= == !=.
type Comparison struct {
	Field string
	Op    string
	Num   float64
	Str   string
	Bool  bool
	Kind  litKind
}

// Contains is `field CONTAINS literal` (case-insensitive substring).
type Contains struct {
	Field  string
	Substr string
}

// In is `field IN [a, b, c]`.
type In struct {
	Field  string
	Values []string
}

// And matches when every term matches. A term that is evaluable and false
// decides the whole conjunction; otherwise all terms must be evaluable.
type And struct{ Terms []Expr }

// Or matches when any evaluable term matches; it is evaluable when a branch
// is evaluable and true, or when every branch is evaluable.
type Or struct{ Terms []Expr }

type litKind int

const (
	litNumber litKind = iota
	litString
	litBool
)

func (c *Comparison) Eval(fields map[string]any) (bool, bool) {
	raw, ok := fields[c.Field]
	if !ok {
		return false, false
	}

	switch c.Kind {
	case litNumber:
		n, ok := toNumber(raw)
		if !ok {
			return false, false
		}
		switch c.Op {
		case "<":
			return n < c.Num, true
		case "<=":
			return n <= c.Num, true
		case ">":
			return n > c.Num, true
		case ">=":
			return n >= c.Num, true
		case "==":
			return n == c.Num, true
		case "!=":
			return n != c.Num, true
		}
	case litString:
		s, ok := raw.(string)
		if !ok {
			return false, false
		}
		eq := strings.EqualFold(s, c.Str)
		switch c.Op {
		case "==":
			return eq, true
		case "!=":
			return !eq, true
		}
	case litBool:
		b, ok := raw.(bool)
		if !ok {
			return false, false
		}
		switch c.Op {
		case "==":
			return b == c.Bool, true
		case "!=":
			return b != c.Bool, true
		}
	}
	return false, false
}

func (c *Contains) Eval(fields map[string]any) (bool, bool) {
	raw, ok := fields[c.Field]
	if !ok {
		return false, false
	}
	s, ok := raw.(string)
	if !ok {
		return false, false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(c.Substr)), true
}

func (i *In) Eval(fields map[string]any) (bool, bool) {
	raw, ok := fields[i.Field]
	if !ok {
		return false, false
	}
	s, ok := raw.(string)
	if !ok {
		return false, false
	}
	for _, v := range i.Values {
		if strings.EqualFold(s, v) {
			return true, true
		}
	}
	return false, true
}

func (a *And) Eval(fields map[string]any) (bool, bool) {
	allEvaluable := true
	for _, t := range a.Terms {
		m, e := t.Eval(fields)
		if e && !m {
			// A definite false decides the conjunction.
			return false, true
		}
		if !e {
			allEvaluable = false
		}
	}
	if !allEvaluable {
		return false, false
	}
	return true, true
}

func (o *Or) Eval(fields map[string]any) (bool, bool) {
	allEvaluable := true
	for _, t := range o.Terms {
		m, e := t.Eval(fields)
		if e && m {
			return true, true
		}
		if !e {
			allEvaluable = false
		}
	}
	if !allEvaluable {
		return false, false
	}
	return false, true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

var (
	orSplit  = regexp.MustCompile(`(?i)\s+OR\s+`)
	andSplit = regexp.MustCompile(`(?i)\s+AND\s+`)
	// leaf operators, longest first so ">=" wins over ">".
	compOps = []string{"<=", ">=", "!=", "==", "<", ">"}
)

// Compile parses a condition string into an expression tree. The grammar is
// flat: leaves (`field OP literal`, `field CONTAINS literal`,
// `field IN [list]`) joined by AND within OR-split clauses; AND binds
// tighter than OR and there is no nesting.
func Compile(condition string) (Expr, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return nil, fmt.Errorf("empty condition")
	}

	clauses := orSplit.Split(condition, -1)
	orTerms := make([]Expr, 0, len(clauses))
	for _, clause := range clauses {
		leaves := andSplit.Split(clause, -1)
		andTerms := make([]Expr, 0, len(leaves))
		for _, leaf := range leaves {
			expr, err := compileLeaf(leaf)
			if err != nil {
				return nil, err
			}
			andTerms = append(andTerms, expr)
		}
		if len(andTerms) == 1 {
			orTerms = append(orTerms, andTerms[0])
		} else {
			orTerms = append(orTerms, &And{Terms: andTerms})
		}
	}
	if len(orTerms) == 1 {
		return orTerms[0], nil
	}
	return &Or{Terms: orTerms}, nil
}

var (
	containsRe = regexp.MustCompile(`(?i)^(\S+)\s+CONTAINS\s+(.+)$`)
	inRe       = regexp.MustCompile(`(?i)^(\S+)\s+IN\s+\[(.*)\]$`)
)

func compileLeaf(leaf string) (Expr, error) {
	leaf = strings.TrimSpace(leaf)

	if m := inRe.FindStringSubmatch(leaf); m != nil {
		parts := strings.Split(m[2], ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if v := unquote(strings.TrimSpace(p)); v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("empty IN list in %q", leaf)
		}
		return &In{Field: strings.ToLower(m[1]), Values: values}, nil
	}

	if m := containsRe.FindStringSubmatch(leaf); m != nil {
		return &Contains{Field: strings.ToLower(m[1]), Substr: unquote(strings.TrimSpace(m[2]))}, nil
	}

	for _, op := range compOps {
		idx := strings.Index(leaf, op)
		if idx <= 0 {
			continue
		}
		field := strings.ToLower(strings.TrimSpace(leaf[:idx]))
		lit := strings.TrimSpace(leaf[idx+len(op):])
		if field == "" || lit == "" || strings.ContainsAny(field, "<>=! ") {
			continue
		}
		return compileComparison(field, op, lit)
	}

	return nil, fmt.Errorf("unparseable condition leaf %q", leaf)
}

func compileComparison(field, op, lit string) (Expr, error) {
	if n, err := strconv.ParseFloat(lit, 64); err == nil {
		return &Comparison{Field: field, Op: op, Num: n, Kind: litNumber}, nil
	}
	lower := strings.ToLower(lit)
	if lower == "true" || lower == "false" {
		if op != "==" && op != "!=" {
			return nil, fmt.Errorf("operator %q not valid for boolean literal", op)
		}
		return &Comparison{Field: field, Op: op, Bool: lower == "true", Kind: litBool}, nil
	}
	if op != "==" && op != "!=" {
		return nil, fmt.Errorf("operator %q not valid for string literal %q", op, lit)
	}
	return &Comparison{Field: field, Op: op, Str: unquote(lit), Kind: litString}, nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
