package dynamo

import (
	"context"
	"fmt"
	"iter"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// QueryItems returns a lazy, single-pass sequence over all items matched by
// the query, transparently re-issuing the request with the continuation key
// until the result set is exhausted. The sequence is not restartable;
// callers that need a second pass must materialize it. The input is copied
// so the caller's ExclusiveStartKey is never mutated.
func QueryItems(ctx context.Context, client Client, input *dynamodb.QueryInput) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		req := *input
		for {
			output, err := client.Query(ctx, &req)
			if err != nil {
				yield(nil, fmt.Errorf("query %s: %w", orEmpty(req.TableName), err))
				return
			}
			for _, item := range output.Items {
				if !yield(item, nil) {
					return
				}
			}
			if output.LastEvaluatedKey == nil {
				return
			}
			req.ExclusiveStartKey = output.LastEvaluatedKey
		}
	}
}

// ScanItems is the Scan counterpart of QueryItems.
func ScanItems(ctx context.Context, client Client, input *dynamodb.ScanInput) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		req := *input
		for {
			output, err := client.Scan(ctx, &req)
			if err != nil {
				yield(nil, fmt.Errorf("scan %s: %w", orEmpty(req.TableName), err))
				return
			}
			for _, item := range output.Items {
				if !yield(item, nil) {
					return
				}
			}
			if output.LastEvaluatedKey == nil {
				return
			}
			req.ExclusiveStartKey = output.LastEvaluatedKey
		}
	}
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
