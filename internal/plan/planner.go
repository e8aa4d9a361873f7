// Package plan translates SCIM filter trees into the cheapest executable
// access path: a set of index-backed partition queries with residual
// post-filters, or a single guarded table scan.
package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/idstack-io/scim-accounts/internal/filter"
	"github.com/idstack-io/scim-accounts/internal/schema"
)

// MaxQueries caps the number of distinct key conditions one plan may
// fan out into.
const MaxQueries = 8

var (
	// ErrUnsupportedQuery marks filters the planner cannot express:
	// unknown attribute paths, type-mismatched literals, and operators
	// with no store rendering (co).
	ErrUnsupportedQuery = errors.New("unsupported query")
	// ErrTooManyQueries marks plans that exceed MaxQueries.
	ErrTooManyQueries = errors.New("query requires too many operations")
)

// TermOp is a normalized comparison operator. Ne never survives
// normalization: it is split into Lt/Gt products.
type TermOp int

const (
	TermEq TermOp = iota
	TermNe
	TermLt
	TermLe
	TermGt
	TermGe
	TermSw
	TermNotSw
	TermPr
	TermNotPr
)

// Term is an atomic comparison over one attribute. Value is coerced to
// the attribute's kind; nil for TermPr/TermNotPr.
type Term struct {
	Attr  *schema.Attribute
	Op    TermOp
	Value any
}

// Product is a conjunction of terms.
type Product []Term

// DNF is a disjunction of products.
type DNF []Product

// KeyCondition is the store-side part of one query: an equality on an
// index partition attribute plus an optional sort range.
type KeyCondition struct {
	Index     schema.Index
	Partition Term
	Sort      *Term
}

// Query is one planned partition query with the OR of residual products
// to re-check in process.
type Query struct {
	Key       KeyCondition
	Residuals []Product
}

// Plan is the planner output: either Queries, or a full scan filtered
// by ScanFilter. A plan with Scan false and no Queries matches nothing
// (the filter was contradictory).
type Plan struct {
	Queries    []Query
	Scan       bool
	ScanFilter DNF
}

// Build plans expr against the table. The plan prefers indexed queries,
// merging products that share a key condition, and falls back to a scan
// when any product has no usable index.
func Build(expr filter.Expression, table *schema.Table) (*Plan, error) {
	dnf, err := normalize(expr, table, false)
	if err != nil {
		return nil, err
	}
	dnf = simplify(dnf)
	if len(dnf) == 0 {
		return &Plan{}, nil
	}

	var queries []Query
	merged := make(map[string]int)
	for _, product := range dnf {
		key, residual, ok := chooseIndex(table, product)
		if !ok {
			return &Plan{Scan: true, ScanFilter: dnf}, nil
		}
		sig := key.signature()
		if at, seen := merged[sig]; seen {
			queries[at].Residuals = append(queries[at].Residuals, residual)
			continue
		}
		if len(queries) == MaxQueries {
			return nil, fmt.Errorf("%w: more than %d key conditions", ErrTooManyQueries, MaxQueries)
		}
		merged[sig] = len(queries)
		queries = append(queries, Query{Key: key, Residuals: []Product{residual}})
	}
	return &Plan{Queries: queries}, nil
}

// normalize rewrites expr into DNF, pushing negation down with de Morgan
// and splitting ne into two products.
func normalize(expr filter.Expression, table *schema.Table, negated bool) (DNF, error) {
	switch node := expr.(type) {
	case filter.Not:
		return normalize(node.Operand, table, !negated)
	case filter.And:
		if negated {
			return normalizeDisjunction(node.Operands, table, true)
		}
		return normalizeConjunction(node.Operands, table, false)
	case filter.Or:
		if negated {
			return normalizeConjunction(node.Operands, table, true)
		}
		return normalizeDisjunction(node.Operands, table, false)
	case filter.Compare:
		return normalizeCompare(node, table, negated)
	default:
		return nil, fmt.Errorf("%w: unknown expression node %T", ErrUnsupportedQuery, expr)
	}
}

func normalizeConjunction(operands []filter.Expression, table *schema.Table, negated bool) (DNF, error) {
	result := DNF{{}}
	for _, operand := range operands {
		sub, err := normalize(operand, table, negated)
		if err != nil {
			return nil, err
		}
		// Cross product: AND distributes over the disjuncts of each side.
		crossed := make(DNF, 0, len(result)*len(sub))
		for _, left := range result {
			for _, right := range sub {
				product := make(Product, 0, len(left)+len(right))
				product = append(product, left...)
				product = append(product, right...)
				crossed = append(crossed, product)
			}
		}
		result = crossed
	}
	return result, nil
}

func normalizeDisjunction(operands []filter.Expression, table *schema.Table, negated bool) (DNF, error) {
	var result DNF
	for _, operand := range operands {
		sub, err := normalize(operand, table, negated)
		if err != nil {
			return nil, err
		}
		result = append(result, sub...)
	}
	return result, nil
}

func normalizeCompare(cmp filter.Compare, table *schema.Table, negated bool) (DNF, error) {
	attr := table.Resolve(cmp.Path)
	if attr == nil {
		return nil, fmt.Errorf("%w: unknown attribute %q", ErrUnsupportedQuery, cmp.Path)
	}

	op, err := termOp(cmp.Op, negated)
	if err != nil {
		return nil, err
	}
	if op == TermPr || op == TermNotPr {
		return DNF{{Term{Attr: attr, Op: op}}}, nil
	}

	value, err := attr.Coerce(cmp.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedQuery, err)
	}
	if op == TermNe {
		// The store cannot key on inequality; split the enclosing
		// product into a below-range and an above-range product.
		return DNF{
			{Term{Attr: attr, Op: TermLt, Value: value}},
			{Term{Attr: attr, Op: TermGt, Value: value}},
		}, nil
	}
	return DNF{{Term{Attr: attr, Op: op, Value: value}}}, nil
}

func termOp(op filter.Operator, negated bool) (TermOp, error) {
	if negated {
		flipped, ok := negatedOp[op]
		if !ok {
			return 0, fmt.Errorf("%w: operator %q cannot be negated", ErrUnsupportedQuery, op)
		}
		return flipped, nil
	}
	direct, ok := directOp[op]
	if !ok {
		return 0, fmt.Errorf("%w: operator %q", ErrUnsupportedQuery, op)
	}
	return direct, nil
}

var directOp = map[filter.Operator]TermOp{
	filter.OpEq: TermEq,
	filter.OpNe: TermNe,
	filter.OpLt: TermLt,
	filter.OpLe: TermLe,
	filter.OpGt: TermGt,
	filter.OpGe: TermGe,
	filter.OpSw: TermSw,
	filter.OpPr: TermPr,
}

var negatedOp = map[filter.Operator]TermOp{
	filter.OpEq: TermNe,
	filter.OpNe: TermEq,
	filter.OpLt: TermGe,
	filter.OpLe: TermGt,
	filter.OpGt: TermLe,
	filter.OpGe: TermLt,
	filter.OpSw: TermNotSw,
	filter.OpPr: TermNotPr,
}

// simplify drops duplicate terms, collapses contradictory products
// (two different equalities on one attribute), and deduplicates
// products by term-set equality.
func simplify(dnf DNF) DNF {
	out := make(DNF, 0, len(dnf))
	seenProducts := make(map[string]bool)
	for _, product := range dnf {
		cleaned, contradictory := simplifyProduct(product)
		if contradictory {
			continue
		}
		sig := productSignature(cleaned)
		if seenProducts[sig] {
			continue
		}
		seenProducts[sig] = true
		out = append(out, cleaned)
	}
	return out
}

func simplifyProduct(product Product) (Product, bool) {
	cleaned := make(Product, 0, len(product))
	seenTerms := make(map[string]bool)
	equalities := make(map[*schema.Attribute]any)
	for _, term := range product {
		sig := term.signature()
		if seenTerms[sig] {
			continue
		}
		seenTerms[sig] = true
		if term.Op == TermEq {
			if prior, ok := equalities[term.Attr]; ok && prior != term.Value {
				return nil, true
			}
			equalities[term.Attr] = term.Value
		}
		cleaned = append(cleaned, term)
	}
	return cleaned, false
}

func (t Term) signature() string {
	return fmt.Sprintf("%s|%d|%v", t.Attr.Name, t.Op, t.Value)
}

func productSignature(product Product) string {
	sigs := make([]string, len(product))
	for i, term := range product {
		sigs[i] = term.signature()
	}
	sort.Strings(sigs)
	return strings.Join(sigs, "&")
}

func (k KeyCondition) signature() string {
	sig := k.Index.Name + "/" + k.Partition.signature()
	if k.Sort != nil {
		sig += "/" + k.Sort.signature()
	}
	return sig
}

// sortableOps are the comparators a sort-key condition can express.
var sortableOps = map[TermOp]bool{
	TermEq: true,
	TermLt: true,
	TermLe: true,
	TermGt: true,
	TermGe: true,
	TermSw: true,
}

// chooseIndex picks the best index for one product: the first declared
// index whose partition attribute appears as an equality, preferring
// indexes whose sort attribute is also constrained. Returns the key
// condition and the residual terms, or ok=false when no index fits.
func chooseIndex(table *schema.Table, product Product) (KeyCondition, Product, bool) {
	type candidate struct {
		key      KeyCondition
		consumed map[int]bool
		hasSort  bool
	}
	var fallback *candidate

	for _, index := range table.Indexes {
		partAt := -1
		for i, term := range product {
			if term.Attr == index.Partition && term.Op == TermEq {
				partAt = i
				break
			}
		}
		if partAt < 0 {
			continue
		}
		cand := &candidate{
			key:      KeyCondition{Index: index, Partition: product[partAt]},
			consumed: map[int]bool{partAt: true},
		}
		if index.Sort != nil {
			for i, term := range product {
				if i != partAt && term.Attr == index.Sort && sortableOps[term.Op] {
					sortTerm := term
					cand.key.Sort = &sortTerm
					cand.consumed[i] = true
					cand.hasSort = true
					break
				}
			}
		}
		if cand.hasSort {
			return cand.key, residualOf(product, cand.consumed), true
		}
		if fallback == nil {
			fallback = cand
		}
	}
	if fallback == nil {
		return KeyCondition{}, nil, false
	}
	return fallback.key, residualOf(product, fallback.consumed), true
}

func residualOf(product Product, consumed map[int]bool) Product {
	residual := make(Product, 0, len(product)-len(consumed))
	for i, term := range product {
		if !consumed[i] {
			residual = append(residual, term)
		}
	}
	return residual
}
