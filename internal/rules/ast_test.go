package rules

import "testing"

func TestCompile_ComparisonAnd(t *testing.T) {
	expr, err := Compile("tenure_percentile < 10 AND comp_percentile > 75")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	tests := []struct {
		name      string
		fields    map[string]any
		matched   bool
		evaluable bool
	}{
		{
			name:      "both operands satisfied",
			fields:    map[string]any{"tenure_percentile": 5.0, "comp_percentile": 80.0},
			matched:   true,
			evaluable: true,
		},
		{
			name:      "tenure operand fails",
			fields:    map[string]any{"tenure_percentile": 15.0, "comp_percentile": 80.0},
			matched:   false,
			evaluable: true,
		},
		{
			name:      "comp operand fails",
			fields:    map[string]any{"tenure_percentile": 5.0, "comp_percentile": 70.0},
			matched:   false,
			evaluable: true,
		},
		{
			name:      "missing field is non-evaluable",
			fields:    map[string]any{"tenure_percentile": 5.0},
			matched:   false,
			evaluable: false,
		},
		{
			name:      "definite false with missing sibling still evaluable",
			fields:    map[string]any{"tenure_percentile": 50.0},
			matched:   false,
			evaluable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, e := expr.Eval(tt.fields)
			if m != tt.matched || e != tt.evaluable {
				t.Fatalf("got (matched=%v, evaluable=%v), want (%v, %v)", m, e, tt.matched, tt.evaluable)
			}
		})
	}
}

func TestCompile_OrSemantics(t *testing.T) {
	expr, err := Compile("status == notice OR comp_percentile < 25")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	// One branch evaluable and true → matched even with the other absent.
	m, e := expr.Eval(map[string]any{"status": "notice"})
	if !m || !e {
		t.Fatalf("true branch should carry the OR: got (%v, %v)", m, e)
	}

	// All branches evaluable and false → evaluable non-match.
	m, e = expr.Eval(map[string]any{"status": "active", "comp_percentile": 60.0})
	if m || !e {
		t.Fatalf("all-false OR should be evaluable: got (%v, %v)", m, e)
	}

	// Remaining branch absent and the present one false → non-evaluable.
	m, e = expr.Eval(map[string]any{"status": "active"})
	if m || e {
		t.Fatalf("partially absent OR without a true branch should be non-evaluable: got (%v, %v)", m, e)
	}
}

func TestCompile_AndBindsWithinOrClause(t *testing.T) {
	// AND binds tighter: (a>1 AND b>1) OR (c>1)
	expr, err := Compile("a > 1 AND b > 1 OR c > 1")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	m, _ := expr.Eval(map[string]any{"a": 0.0, "b": 5.0, "c": 5.0})
	if !m {
		t.Fatal("c branch alone should match")
	}
	m, _ = expr.Eval(map[string]any{"a": 5.0, "b": 5.0, "c": 0.0})
	if !m {
		t.Fatal("a AND b branch should match")
	}
	m, _ = expr.Eval(map[string]any{"a": 5.0, "b": 0.0, "c": 0.0})
	if m {
		t.Fatal("neither clause should match")
	}
}

func TestCompile_ContainsAndIn(t *testing.T) {
	expr, err := Compile("position CONTAINS director")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if m, e := expr.Eval(map[string]any{"position": "Engineering Director"}); !m || !e {
		t.Fatal("CONTAINS should match case-insensitively")
	}

	expr, err = Compile("status IN [notice, exited]")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if m, _ := expr.Eval(map[string]any{"status": "exited"}); !m {
		t.Fatal("IN should match listed value")
	}
	if m, e := expr.Eval(map[string]any{"status": "active"}); m || !e {
		t.Fatal("IN non-member should be an evaluable non-match")
	}
}

func TestCompile_BooleanAndQuotedLiterals(t *testing.T) {
	expr, err := Compile("comp_below_p25 == true")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if m, _ := expr.Eval(map[string]any{"comp_below_p25": true}); !m {
		t.Fatal("boolean comparison should match")
	}

	expr, err = Compile(`department == 'Customer Support'`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if m, _ := expr.Eval(map[string]any{"department": "customer support"}); !m {
		t.Fatal("quoted string equality should be case-insensitive")
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, cond := range []string{
		"",
		"tenure_percentile <",
		"position CONTAINS",
		"status IN []",
		"tenure_percentile ~ 10",
		"position > active", // ordering op on string literal
	} {
		if _, err := Compile(cond); err == nil {
			t.Errorf("expected compile error for %q", cond)
		}
	}
}
