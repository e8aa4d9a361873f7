package dynamo

import (
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const reasonConditionalCheckFailed = "ConditionalCheckFailed"

// IsConditionalCheckFailed reports whether err is a single-item write
// rejected by its condition expression.
func IsConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// IsTransactionConditionFailure reports whether err is a transaction
// cancelled because one of its per-item condition expressions failed.
// Other cancellation reasons (throughput, validation) do not count.
func IsTransactionConditionFailure(err error) bool {
	var tc *types.TransactionCanceledException
	if !errors.As(err, &tc) {
		return IsConditionalCheckFailed(err)
	}
	for _, reason := range tc.CancellationReasons {
		if reason.Code != nil && *reason.Code == reasonConditionalCheckFailed {
			return true
		}
	}
	return false
}
