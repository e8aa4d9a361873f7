package plan

import "testing"

func sourceFrom(values map[string]any) Source {
	return func(column string) (any, bool) {
		v, ok := values[column]
		return v, ok
	}
}

func TestMatchesOperators(t *testing.T) {
	src := sourceFrom(map[string]any{
		"owner":   "alice",
		"expires": float64(2000),
	})

	tests := []struct {
		name string
		term Term
		want bool
	}{
		{"eq hit", Term{Attr: testOwner, Op: TermEq, Value: "alice"}, true},
		{"eq miss", Term{Attr: testOwner, Op: TermEq, Value: "bob"}, false},
		{"ne", Term{Attr: testOwner, Op: TermNe, Value: "bob"}, true},
		{"lt", Term{Attr: testExpires, Op: TermLt, Value: float64(3000)}, true},
		{"le boundary", Term{Attr: testExpires, Op: TermLe, Value: float64(2000)}, true},
		{"gt miss", Term{Attr: testExpires, Op: TermGt, Value: float64(2000)}, false},
		{"ge boundary", Term{Attr: testExpires, Op: TermGe, Value: float64(2000)}, true},
		{"sw hit", Term{Attr: testOwner, Op: TermSw, Value: "ali"}, true},
		{"sw miss", Term{Attr: testOwner, Op: TermSw, Value: "bob"}, false},
		{"not sw", Term{Attr: testOwner, Op: TermNotSw, Value: "bob"}, true},
		{"pr present", Term{Attr: testOwner, Op: TermPr}, true},
		{"pr absent", Term{Attr: testStatus, Op: TermPr}, false},
		{"not pr absent", Term{Attr: testStatus, Op: TermNotPr}, true},
		{"absent attr comparison", Term{Attr: testStatus, Op: TermEq, Value: "issued"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Matches([]Product{{tt.term}}, src)
			if got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesProductSemantics(t *testing.T) {
	src := sourceFrom(map[string]any{"owner": "alice", "status": "issued"})

	both := Product{
		{Attr: testOwner, Op: TermEq, Value: "alice"},
		{Attr: testStatus, Op: TermEq, Value: "issued"},
	}
	oneWrong := Product{
		{Attr: testOwner, Op: TermEq, Value: "alice"},
		{Attr: testStatus, Op: TermEq, Value: "revoked"},
	}

	if !Matches([]Product{both}, src) {
		t.Error("conjunction with all terms holding must match")
	}
	if Matches([]Product{oneWrong}, src) {
		t.Error("conjunction with a failing term must not match")
	}
	// Disjunction of products: one holding product is enough.
	if !Matches([]Product{oneWrong, both}, src) {
		t.Error("disjunction with one holding product must match")
	}
}

func TestMatchesEmptySemantics(t *testing.T) {
	src := sourceFrom(nil)

	// No residual constraint accepts everything.
	if !Matches(nil, src) {
		t.Error("empty residual list must accept")
	}
	// An empty product is a tautology.
	if !Matches([]Product{{}}, src) {
		t.Error("empty product must accept")
	}
	// A contradictory (empty) scan filter matches nothing.
	if MatchesDNF(nil, src) {
		t.Error("empty DNF must reject")
	}
}

func TestMatchesTypeMismatchRejects(t *testing.T) {
	src := sourceFrom(map[string]any{"expires": "not-a-number"})
	if Matches([]Product{{{Attr: testExpires, Op: TermEq, Value: float64(1)}}}, src) {
		t.Error("mismatched value type must not match")
	}
}
