package account

import (
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/idstack-io/scim-accounts/internal/dynamo"
	"github.com/idstack-io/scim-accounts/internal/schema"
)

// versionCondition guards every replace and delete in an update
// transaction: the item must still carry the observed version and
// belong to the observed account.
const versionCondition = AttrVersion + " = :version AND " + AttrAccountID + " = :accountId"

// createCondition guards puts that claim a new pk namespace entry.
const createCondition = "attribute_not_exists(" + dynamo.AttrPK + ")"

// UpdateBuilder assembles the transaction-write set for one account
// mutation: a replace of the main item plus the add/keep/remove of each
// unique secondary item.
type UpdateBuilder struct {
	tableName string
	common    dynamo.Item
	condition map[string]types.AttributeValue
	writes    []types.TransactWriteItem
}

// NewUpdateBuilder starts a builder for an update observed at
// observedVersion. common is the new shared payload (without pk).
func NewUpdateBuilder(tableName string, common dynamo.Item, accountID string, observedVersion int64) *UpdateBuilder {
	return &UpdateBuilder{
		tableName: tableName,
		common:    common,
		condition: map[string]types.AttributeValue{
			":version":   &types.AttributeValueMemberN{Value: strconv.FormatInt(observedVersion, 10)},
			":accountId": &types.AttributeValueMemberS{Value: accountID},
		},
	}
}

// HandleUniqueAttribute appends the writes for one unique secondary
// item given its old and new values (empty string means unset).
func (b *UpdateBuilder) HandleUniqueAttribute(attr *schema.Attribute, oldValue, newValue string) {
	switch {
	case oldValue == "" && newValue == "":
		// Nothing to do.
	case oldValue == "":
		b.putNew(attr.UniquenessValue(newValue))
	case newValue == "":
		b.deleteOld(attr.UniquenessValue(oldValue))
	case oldValue == newValue:
		b.replace(attr.UniquenessValue(oldValue))
	default:
		b.deleteOld(attr.UniquenessValue(oldValue))
		b.putNew(attr.UniquenessValue(newValue))
	}
}

// Build appends the main-item replace and returns the transaction.
func (b *UpdateBuilder) Build(mainKey string) ([]types.TransactWriteItem, error) {
	b.replace(mainKey)
	if len(b.writes) == 0 {
		return nil, errors.New("empty update transaction")
	}
	return b.writes, nil
}

func (b *UpdateBuilder) itemFor(pk string) dynamo.Item {
	item := make(dynamo.Item, len(b.common)+1)
	for k, v := range b.common {
		item[k] = v
	}
	item[dynamo.AttrPK] = &types.AttributeValueMemberS{Value: pk}
	return item
}

func (b *UpdateBuilder) putNew(pk string) {
	b.writes = append(b.writes, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(b.tableName),
			Item:                b.itemFor(pk),
			ConditionExpression: aws.String(createCondition),
		},
	})
}

func (b *UpdateBuilder) replace(pk string) {
	b.writes = append(b.writes, types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 aws.String(b.tableName),
			Item:                      b.itemFor(pk),
			ConditionExpression:       aws.String(versionCondition),
			ExpressionAttributeValues: b.condition,
		},
	})
}

func (b *UpdateBuilder) deleteOld(pk string) {
	b.writes = append(b.writes, types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(b.tableName),
			Key: dynamo.Item{
				dynamo.AttrPK: &types.AttributeValueMemberS{Value: pk},
			},
			ConditionExpression:       aws.String(versionCondition),
			ExpressionAttributeValues: b.condition,
		},
	})
}
