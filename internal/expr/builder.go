// Package expr builds DynamoDB expression fragments: it hands out
// deterministic #name aliases and :name_N value placeholders together
// with the name and value maps a request needs.
package expr

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/idstack-io/scim-accounts/internal/schema"
)

// Builder accumulates the placeholder maps for one emission. Placeholders
// are numbered per attribute within the emission, so repeated values of
// the same attribute get distinct names (:status_1, :status_2, ...).
type Builder struct {
	names    map[string]string
	values   map[string]types.AttributeValue
	counters map[string]int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		names:    make(map[string]string),
		values:   make(map[string]types.AttributeValue),
		counters: make(map[string]int),
	}
}

// Name registers the attribute's #alias and returns it.
func (b *Builder) Name(a *schema.Attribute) string {
	return b.NameOf(a.Name)
}

// NameOf registers a #alias for a raw column name and returns it.
func (b *Builder) NameOf(column string) string {
	alias := "#" + column
	b.names[alias] = column
	return alias
}

// Value encodes v for the attribute and registers it under a fresh
// placeholder, which it returns.
func (b *Builder) Value(a *schema.Attribute, v any) (string, error) {
	av, err := a.Encode(v)
	if err != nil {
		return "", err
	}
	return b.ValueOf(a.Name, av), nil
}

// ValueOf registers an already-encoded value under a fresh placeholder
// derived from the column name.
func (b *Builder) ValueOf(column string, av types.AttributeValue) string {
	b.counters[column]++
	placeholder := fmt.Sprintf(":%s_%d", column, b.counters[column])
	b.values[placeholder] = av
	return placeholder
}

// Names returns the accumulated alias map, or nil when empty.
func (b *Builder) Names() map[string]string {
	if len(b.names) == 0 {
		return nil
	}
	return b.names
}

// Values returns the accumulated value map, or nil when empty.
func (b *Builder) Values() map[string]types.AttributeValue {
	if len(b.values) == 0 {
		return nil
	}
	return b.values
}
