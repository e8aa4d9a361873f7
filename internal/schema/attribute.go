// Package schema describes tables as the planner sees them: typed
// attribute descriptors, declared indexes, and the map from logical
// SCIM paths to physical attributes.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/text/unicode/norm"
)

// Kind is the physical type of an attribute.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

// Attribute describes one physical column. Descriptors are immutable
// and compared by pointer inside the planner.
type Attribute struct {
	// Name is the physical column name.
	Name string
	Kind Kind
	// UniquePrefix tags unique attributes; their values become
	// partition keys as UniquePrefix + value (e.g. "un#alice").
	UniquePrefix string
	// Sortable marks attributes that may order a result set.
	Sortable bool
}

// HashName is the expression-attribute-name alias for this column.
func (a *Attribute) HashName() string { return "#" + a.Name }

// ColonName is the base of value placeholders for this column.
func (a *Attribute) ColonName() string { return ":" + a.Name }

// UniquenessValue builds the partition key value for a unique attribute.
// Values are NFC-normalized so byte-distinct spellings of the same text
// land on the same key.
func (a *Attribute) UniquenessValue(v string) string {
	return a.UniquePrefix + norm.NFC.String(v)
}

// Coerce validates v against the attribute kind and returns its
// canonical in-memory form (string, float64, or bool).
func (a *Attribute) Coerce(v any) (any, error) {
	switch a.Kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("attribute %s: value %v has wrong type", a.Name, v)
}

// Encode converts a coerced value into its store representation.
func (a *Attribute) Encode(v any) (types.AttributeValue, error) {
	cv, err := a.Coerce(v)
	if err != nil {
		return nil, err
	}
	switch a.Kind {
	case KindNumber:
		return &types.AttributeValueMemberN{Value: formatNumber(cv.(float64))}, nil
	case KindBool:
		return &types.AttributeValueMemberBOOL{Value: cv.(bool)}, nil
	default:
		return &types.AttributeValueMemberS{Value: cv.(string)}, nil
	}
}

// Decode converts a store value back into its in-memory form.
func (a *Attribute) Decode(av types.AttributeValue) (any, error) {
	switch a.Kind {
	case KindNumber:
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, fmt.Errorf("attribute %s: expected number", a.Name)
		}
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		return f, nil
	case KindBool:
		b, ok := av.(*types.AttributeValueMemberBOOL)
		if !ok {
			return nil, fmt.Errorf("attribute %s: expected boolean", a.Name)
		}
		return b.Value, nil
	default:
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("attribute %s: expected string", a.Name)
		}
		return s.Value, nil
	}
}

// Compare orders two coerced values of this attribute's kind.
// Booleans order false before true.
func (a *Attribute) Compare(x, y any) int {
	switch a.Kind {
	case KindNumber:
		xf, _ := x.(float64)
		yf, _ := y.(float64)
		switch {
		case xf < yf:
			return -1
		case xf > yf:
			return 1
		}
		return 0
	case KindBool:
		xb, _ := x.(bool)
		yb, _ := y.(bool)
		switch {
		case !xb && yb:
			return -1
		case xb && !yb:
			return 1
		}
		return 0
	default:
		xs, _ := x.(string)
		ys, _ := y.(string)
		return strings.Compare(xs, ys)
	}
}

// formatNumber renders a float64 the way DynamoDB number strings are
// written: integral values without a fractional part.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
