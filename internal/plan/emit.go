package plan

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/idstack-io/scim-accounts/internal/expr"
	"github.com/idstack-io/scim-accounts/internal/schema"
)

// EmitQuery lowers one planned query to a QueryInput. Primary-key
// lookups (unnamed index) are rendered against the table's partition
// attribute, applying the uniqueness prefix when the matched attribute
// carries one.
func EmitQuery(table *schema.Table, q Query) (*dynamodb.QueryInput, error) {
	b := expr.NewBuilder()

	keyExpr, err := renderPartition(b, table, q.Key)
	if err != nil {
		return nil, err
	}
	if q.Key.Sort != nil {
		sortExpr, err := renderTerm(b, *q.Key.Sort, true)
		if err != nil {
			return nil, err
		}
		keyExpr += " AND " + sortExpr
	}

	filterExpr, err := renderProducts(b, q.Residuals)
	if err != nil {
		return nil, err
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(table.Name),
		KeyConditionExpression:    aws.String(keyExpr),
		ExpressionAttributeNames:  b.Names(),
		ExpressionAttributeValues: b.Values(),
	}
	if q.Key.Index.Name != "" {
		input.IndexName = aws.String(q.Key.Index.Name)
	}
	if filterExpr != "" {
		input.FilterExpression = aws.String(filterExpr)
	}
	return input, nil
}

// EmitScan lowers a scan filter to a ScanInput. A non-empty guardPrefix
// adds a begins_with condition on the table's partition key, which the
// account store uses to keep secondary fan-out items out of scans.
func EmitScan(table *schema.Table, dnf DNF, guardPrefix string) (*dynamodb.ScanInput, error) {
	b := expr.NewBuilder()

	filterExpr, err := renderProducts(b, dnf)
	if err != nil {
		return nil, err
	}
	if guardPrefix != "" {
		guard := fmt.Sprintf("begins_with(%s, %s)",
			b.NameOf(table.Primary.Name),
			b.ValueOf(table.Primary.Name, &types.AttributeValueMemberS{Value: guardPrefix}))
		if filterExpr == "" {
			filterExpr = guard
		} else {
			filterExpr = guard + " AND (" + filterExpr + ")"
		}
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(table.Name),
		ExpressionAttributeNames:  b.Names(),
		ExpressionAttributeValues: b.Values(),
	}
	if filterExpr != "" {
		input.FilterExpression = aws.String(filterExpr)
	}
	return input, nil
}

func renderPartition(b *expr.Builder, table *schema.Table, key KeyCondition) (string, error) {
	attr := key.Partition.Attr
	if key.Index.Name != "" {
		placeholder, err := b.Value(attr, key.Partition.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", b.Name(attr), placeholder), nil
	}

	// Primary-key lookup: the condition targets the table's own
	// partition column.
	var av types.AttributeValue
	if attr.UniquePrefix != "" {
		text, ok := key.Partition.Value.(string)
		if !ok {
			return "", fmt.Errorf("%w: unique attribute %s requires a string", ErrUnsupportedQuery, attr.Name)
		}
		av = &types.AttributeValueMemberS{Value: attr.UniquenessValue(text)}
	} else {
		encoded, err := attr.Encode(key.Partition.Value)
		if err != nil {
			return "", err
		}
		av = encoded
	}
	column := table.Primary.Name
	return fmt.Sprintf("%s = %s", b.NameOf(column), b.ValueOf(column, av)), nil
}

// renderProducts renders the OR of products. An empty product is a
// tautology, which makes the whole disjunction unconditional: the
// rendered expression is empty and the caller omits the filter.
func renderProducts(b *expr.Builder, products []Product) (string, error) {
	if len(products) == 0 {
		return "", nil
	}
	rendered := make([]string, 0, len(products))
	for _, product := range products {
		if len(product) == 0 {
			return "", nil
		}
		parts := make([]string, 0, len(product))
		for _, term := range product {
			s, err := renderTerm(b, term, false)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		clause := strings.Join(parts, " AND ")
		if len(products) > 1 && len(parts) > 1 {
			clause = "(" + clause + ")"
		}
		rendered = append(rendered, clause)
	}
	return strings.Join(rendered, " OR "), nil
}

func renderTerm(b *expr.Builder, term Term, keyContext bool) (string, error) {
	alias := b.Name(term.Attr)
	switch term.Op {
	case TermPr:
		if keyContext {
			return "", fmt.Errorf("%w: pr is not a key condition", ErrUnsupportedQuery)
		}
		return fmt.Sprintf("attribute_exists(%s)", alias), nil
	case TermNotPr:
		if keyContext {
			return "", fmt.Errorf("%w: pr is not a key condition", ErrUnsupportedQuery)
		}
		return fmt.Sprintf("attribute_not_exists(%s)", alias), nil
	}

	placeholder, err := b.Value(term.Attr, term.Value)
	if err != nil {
		return "", err
	}
	switch term.Op {
	case TermEq:
		return fmt.Sprintf("%s = %s", alias, placeholder), nil
	case TermLt:
		return fmt.Sprintf("%s < %s", alias, placeholder), nil
	case TermLe:
		return fmt.Sprintf("%s <= %s", alias, placeholder), nil
	case TermGt:
		return fmt.Sprintf("%s > %s", alias, placeholder), nil
	case TermGe:
		return fmt.Sprintf("%s >= %s", alias, placeholder), nil
	case TermSw:
		return fmt.Sprintf("begins_with(%s, %s)", alias, placeholder), nil
	case TermNotSw:
		if keyContext {
			return "", fmt.Errorf("%w: negated sw is not a key condition", ErrUnsupportedQuery)
		}
		return fmt.Sprintf("NOT begins_with(%s, %s)", alias, placeholder), nil
	case TermNe:
		if keyContext {
			return "", fmt.Errorf("%w: ne is not a key condition", ErrUnsupportedQuery)
		}
		return fmt.Sprintf("%s <> %s", alias, placeholder), nil
	default:
		return "", fmt.Errorf("%w: operator %d", ErrUnsupportedQuery, term.Op)
	}
}
