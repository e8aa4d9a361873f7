package plan

import "strings"

// Source yields an item's logical attribute values for residual
// evaluation, keyed by physical column name.
type Source func(column string) (any, bool)

// Matches reports whether any product holds against the source. The
// store-side filter over-approximates when several products share a key
// condition; this re-check restores exact filter semantics. An empty
// product list means "no constraint" and accepts everything.
func Matches(products []Product, source Source) bool {
	if len(products) == 0 {
		return true
	}
	for _, product := range products {
		if productHolds(product, source) {
			return true
		}
	}
	return false
}

// MatchesDNF is Matches over a scan filter, except that an empty DNF
// rejects: a contradictory filter matches nothing.
func MatchesDNF(dnf DNF, source Source) bool {
	for _, product := range dnf {
		if productHolds(product, source) {
			return true
		}
	}
	return false
}

func productHolds(product Product, source Source) bool {
	for _, term := range product {
		if !termHolds(term, source) {
			return false
		}
	}
	return true
}

func termHolds(term Term, source Source) bool {
	value, present := source(term.Attr.Name)
	present = present && value != nil

	switch term.Op {
	case TermPr:
		return present
	case TermNotPr:
		return !present
	}
	if !present {
		return false
	}

	coerced, err := term.Attr.Coerce(value)
	if err != nil {
		return false
	}

	switch term.Op {
	case TermSw, TermNotSw:
		have, ok1 := coerced.(string)
		want, ok2 := term.Value.(string)
		if !ok1 || !ok2 {
			return false
		}
		has := strings.HasPrefix(have, want)
		if term.Op == TermNotSw {
			return !has
		}
		return has
	}

	cmp := term.Attr.Compare(coerced, term.Value)
	switch term.Op {
	case TermEq:
		return cmp == 0
	case TermNe:
		return cmp != 0
	case TermLt:
		return cmp < 0
	case TermLe:
		return cmp <= 0
	case TermGt:
		return cmp > 0
	case TermGe:
		return cmp >= 0
	}
	return false
}
