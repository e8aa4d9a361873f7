// Package link persists links between local accounts and accounts held
// by foreign account managers. Links are single items with no fan-out:
// the pk is the foreign identity, and a secondary index serves the
// per-local-account listing.
package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/idstack-io/scim-accounts/internal/dynamo"
)

// TableName is the default physical table.
const TableName = "curity-links"

// ListLinksIndex is the GSI keyed by (localAccountId, linkingAccountManager).
const ListLinksIndex = "list-links-index"

// ErrLinkExists signals a create against an already-linked foreign
// account.
var ErrLinkExists = errors.New("link already exists")

// Link joins a local account to one foreign account. The foreign
// identity is the primary key, so a foreign account links to at most
// one local account.
type Link struct {
	// ForeignKey is "<linkedAccountId>@<domain>".
	ForeignKey            string `dynamodbav:"pk"`
	LocalAccountID        string `dynamodbav:"localAccountId"`
	LinkingAccountManager string `dynamodbav:"linkingAccountManager"`
	Created               int64  `dynamodbav:"created"`
}

// ForeignKeyOf builds the pk for a foreign account identity.
func ForeignKeyOf(linkedAccountID, domain string) string {
	return linkedAccountID + "@" + domain
}

// Store persists links.
type Store struct {
	client dynamo.Client
	table  string
	now    func() time.Time
}

// NewStore creates a Store over tableName (empty means TableName).
func NewStore(client dynamo.Client, tableName string) *Store {
	if tableName == "" {
		tableName = TableName
	}
	return &Store{client: client, table: tableName, now: time.Now}
}

// Create links a foreign account to a local one. A foreign account may
// only be linked once; a second create fails with ErrLinkExists.
func (s *Store) Create(ctx context.Context, linkedAccountID, domain, localAccountID, manager string) (*Link, error) {
	link := &Link{
		ForeignKey:            ForeignKeyOf(linkedAccountID, domain),
		LocalAccountID:        localAccountID,
		LinkingAccountManager: manager,
		Created:               s.now().Unix(),
	}
	item, err := attributevalue.MarshalMap(link)
	if err != nil {
		return nil, fmt.Errorf("marshal link: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return nil, fmt.Errorf("%w: %s", ErrLinkExists, link.ForeignKey)
		}
		return nil, fmt.Errorf("create link: %w", err)
	}
	return link, nil
}

// Get returns the link for a foreign account identity, or nil when
// absent.
func (s *Store) Get(ctx context.Context, linkedAccountID, domain string) (*Link, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: dynamo.Item{
			"pk": &types.AttributeValueMemberS{Value: ForeignKeyOf(linkedAccountID, domain)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	if output.Item == nil {
		return nil, nil
	}
	link := &Link{}
	if err := attributevalue.UnmarshalMap(output.Item, link); err != nil {
		return nil, fmt.Errorf("unmarshal link: %w", err)
	}
	return link, nil
}

// List returns every link owned by localAccountID, optionally narrowed
// to one account manager.
func (s *Store) List(ctx context.Context, localAccountID, manager string) ([]*Link, error) {
	keyExpr := "#local = :local"
	names := map[string]string{"#local": "localAccountId"}
	values := map[string]types.AttributeValue{
		":local": &types.AttributeValueMemberS{Value: localAccountID},
	}
	if manager != "" {
		keyExpr += " AND #manager = :manager"
		names["#manager"] = "linkingAccountManager"
		values[":manager"] = &types.AttributeValueMemberS{Value: manager}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(ListLinksIndex),
		KeyConditionExpression:    aws.String(keyExpr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}

	var links []*Link
	for item, err := range dynamo.QueryItems(ctx, s.client, input) {
		if err != nil {
			return nil, err
		}
		link := &Link{}
		if err := attributevalue.UnmarshalMap(item, link); err != nil {
			return nil, fmt.Errorf("unmarshal link: %w", err)
		}
		links = append(links, link)
	}
	return links, nil
}

// Delete removes the link for a foreign account identity. Deleting an
// absent link succeeds.
func (s *Store) Delete(ctx context.Context, linkedAccountID, domain string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: dynamo.Item{
			"pk": &types.AttributeValueMemberS{Value: ForeignKeyOf(linkedAccountID, domain)},
		},
	})
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	return nil
}

// DeleteAllFor removes every link owned by localAccountID. Used when
// the owning account is deleted.
func (s *Store) DeleteAllFor(ctx context.Context, localAccountID string) error {
	links, err := s.List(ctx, localAccountID, "")
	if err != nil {
		return err
	}
	for _, link := range links {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key: dynamo.Item{
				"pk": &types.AttributeValueMemberS{Value: link.ForeignKey},
			},
		})
		if err != nil {
			return fmt.Errorf("delete link %s: %w", link.ForeignKey, err)
		}
	}
	return nil
}
