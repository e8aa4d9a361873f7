package delegation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/idstack-io/scim-accounts/internal/dynamo"
	"github.com/idstack-io/scim-accounts/internal/filter"
	"github.com/idstack-io/scim-accounts/internal/plan"
	"github.com/idstack-io/scim-accounts/internal/schema"
	"github.com/idstack-io/scim-accounts/internal/scim"
)

var (
	// ErrDelegationExists signals a create against an existing id.
	ErrDelegationExists = errors.New("delegation already exists")
	// ErrNotFound signals a status change on an absent delegation.
	ErrNotFound = errors.New("delegation not found")
	// ErrQueryRequiresTableScan signals a listing that can only be
	// served by a full scan while table scans are disabled.
	ErrQueryRequiresTableScan = errors.New("query requires a table scan")
)

// Delegation is one issued token grant. The three JSON blobs are stored
// opaquely; this layer never inspects them.
type Delegation struct {
	ID                    string `dynamodbav:"id"`
	Owner                 string `dynamodbav:"owner"`
	ClientID              string `dynamodbav:"clientId"`
	Status                string `dynamodbav:"status"`
	AuthorizationCodeHash string `dynamodbav:"authorizationCodeHash,omitempty"`
	Expires               int64  `dynamodbav:"expires"`
	RedirectURI           string `dynamodbav:"redirectUri,omitempty"`
	Authentication        string `dynamodbav:"authenticationAttributes,omitempty"`
	Consent               string `dynamodbav:"consentAttributes,omitempty"`
	Claims                string `dynamodbav:"claims,omitempty"`
	Created               int64  `dynamodbav:"created"`
}

// valueOf exposes the delegation to residual filter evaluation.
func (d *Delegation) valueOf(column string) (any, bool) {
	switch column {
	case AttrID:
		return d.ID, true
	case AttrOwner:
		return d.Owner, true
	case AttrClientID:
		return d.ClientID, true
	case AttrStatus:
		return d.Status, true
	case AttrAuthHash:
		if d.AuthorizationCodeHash == "" {
			return nil, false
		}
		return d.AuthorizationCodeHash, true
	case AttrExpires:
		return d.Expires, true
	case AttrRedirectURI:
		if d.RedirectURI == "" {
			return nil, false
		}
		return d.RedirectURI, true
	}
	return nil, false
}

// Options configures a Store.
type Options struct {
	AllowTableScans bool
}

// Store persists delegations.
type Store struct {
	client     dynamo.Client
	table      *schema.Table
	allowScans bool
	now        func() time.Time
}

// NewStore creates a Store over tableName (empty means TableName).
func NewStore(client dynamo.Client, tableName string, opts Options) *Store {
	return &Store{
		client:     client,
		table:      NewTable(tableName),
		allowScans: opts.AllowTableScans,
		now:        time.Now,
	}
}

// Create persists a new delegation. The id must be fresh.
func (s *Store) Create(ctx context.Context, d *Delegation) error {
	if d.ID == "" {
		return errors.New("delegation id is required")
	}
	stored := *d
	if stored.Status == "" {
		stored.Status = StatusIssued
	}
	if stored.Created == 0 {
		stored.Created = s.now().Unix()
	}
	item, err := attributevalue.MarshalMap(&stored)
	if err != nil {
		return fmt.Errorf("marshal delegation: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table.Name),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return fmt.Errorf("%w: %s", ErrDelegationExists, d.ID)
		}
		return fmt.Errorf("create delegation: %w", err)
	}
	*d = stored
	return nil
}

// GetByID returns the delegation, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Delegation, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table.Name),
		Key: dynamo.Item{
			AttrID: &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get delegation: %w", err)
	}
	if output.Item == nil {
		return nil, nil
	}
	d := &Delegation{}
	if err := attributevalue.UnmarshalMap(output.Item, d); err != nil {
		return nil, fmt.Errorf("unmarshal delegation: %w", err)
	}
	return d, nil
}

// SetStatus moves the delegation to status. Fails with ErrNotFound when
// the delegation does not exist.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table.Name),
		Key: dynamo.Item{
			AttrID: &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET #status = :status"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#status": AttrStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
		},
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("set delegation status: %w", err)
	}
	return nil
}

// GetAll lists delegations matching the SCIM filter, deduplicated by id
// and ordered per the query.
func (s *Store) GetAll(ctx context.Context, query scim.ResourceQuery) ([]*Delegation, error) {
	results, err := s.collect(ctx, query.Filter)
	if err != nil {
		return nil, err
	}
	if err := s.sortResults(results, query); err != nil {
		return nil, err
	}

	start := query.StartIndex
	if start < 0 {
		start = 0
	}
	if start > len(results) {
		start = len(results)
	}
	end := len(results)
	if query.Count > 0 && start+query.Count < end {
		end = start + query.Count
	}
	return results[start:end], nil
}

func (s *Store) collect(ctx context.Context, filterText string) ([]*Delegation, error) {
	var results []*Delegation
	visited := make(map[string]bool)
	add := func(d *Delegation) {
		if !visited[d.ID] {
			visited[d.ID] = true
			results = append(results, d)
		}
	}

	if filterText == "" {
		if !s.allowScans {
			return nil, ErrQueryRequiresTableScan
		}
		if err := s.scanInto(ctx, nil, add); err != nil {
			return nil, err
		}
		return results, nil
	}

	expr, err := filter.Parse(filterText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plan.ErrUnsupportedQuery, err)
	}
	p, err := plan.Build(expr, s.table)
	if err != nil {
		return nil, err
	}

	if p.Scan {
		if !s.allowScans {
			return nil, ErrQueryRequiresTableScan
		}
		if err := s.scanInto(ctx, p.ScanFilter, add); err != nil {
			return nil, err
		}
		return results, nil
	}

	for _, q := range p.Queries {
		input, err := plan.EmitQuery(s.table, q)
		if err != nil {
			return nil, err
		}
		for item, err := range dynamo.QueryItems(ctx, s.client, input) {
			if err != nil {
				return nil, err
			}
			d := &Delegation{}
			if err := attributevalue.UnmarshalMap(item, d); err != nil {
				return nil, fmt.Errorf("unmarshal delegation: %w", err)
			}
			if !plan.Matches(q.Residuals, d.valueOf) {
				continue
			}
			add(d)
		}
	}
	return results, nil
}

func (s *Store) scanInto(ctx context.Context, dnf plan.DNF, add func(*Delegation)) error {
	input, err := plan.EmitScan(s.table, dnf, "")
	if err != nil {
		return err
	}
	for item, err := range dynamo.ScanItems(ctx, s.client, input) {
		if err != nil {
			return err
		}
		d := &Delegation{}
		if err := attributevalue.UnmarshalMap(item, d); err != nil {
			return fmt.Errorf("unmarshal delegation: %w", err)
		}
		if dnf != nil && !plan.MatchesDNF(dnf, d.valueOf) {
			continue
		}
		add(d)
	}
	return nil
}

func (s *Store) sortResults(results []*Delegation, query scim.ResourceQuery) error {
	if query.SortBy == "" {
		return nil
	}
	attr := s.table.Resolve(query.SortBy)
	if attr == nil || !attr.Sortable {
		return fmt.Errorf("%w: cannot sort by %q", plan.ErrUnsupportedQuery, query.SortBy)
	}
	sort.SliceStable(results, func(i, j int) bool {
		cmp := compareDelegations(results[i], results[j], attr)
		if query.Ascending {
			return cmp < 0
		}
		return cmp > 0
	})
	return nil
}

func compareDelegations(a, b *Delegation, attr *schema.Attribute) int {
	va, oka := a.valueOf(attr.Name)
	vb, okb := b.valueOf(attr.Name)
	switch {
	case !oka && !okb:
		return 0
	case !oka:
		return -1
	case !okb:
		return 1
	}
	ca, err := attr.Coerce(va)
	if err != nil {
		return 0
	}
	cb, err := attr.Coerce(vb)
	if err != nil {
		return 0
	}
	return attr.Compare(ca, cb)
}
