package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/idstack-io/scim-accounts/internal/dynamo"
	"github.com/idstack-io/scim-accounts/internal/filter"
	"github.com/idstack-io/scim-accounts/internal/plan"
	"github.com/idstack-io/scim-accounts/internal/retry"
	"github.com/idstack-io/scim-accounts/internal/schema"
	"github.com/idstack-io/scim-accounts/internal/scim"
)

// Error types for store operations.
var (
	// ErrConflict signals a uniqueness violation or an optimistic
	// concurrency failure that survived the retry budget.
	ErrConflict = errors.New("conflict")
	// ErrQueryRequiresTableScan signals a listing that can only be
	// served by a full scan while table scans are disabled.
	ErrQueryRequiresTableScan = errors.New("query requires a table scan")
)

// Core attribute names that never go into the open attributes blob.
// Linked accounts are managed by the link store and never persisted on
// the account itself.
var coreAttributes = map[string]bool{
	scim.AttrID:         true,
	scim.AttrUserName:   true,
	scim.AttrEmail:      true,
	scim.AttrPhone:      true,
	scim.AttrPassword:   true,
	scim.AttrActive:     true,
	scim.AttrMeta:       true,
	scim.AttrLinkedAccs: true,
}

// Options configures a Store.
type Options struct {
	// AllowTableScans permits plans that fall back to a full scan.
	AllowTableScans bool
	// Codec serializes the attributes blob; nil means JSON.
	Codec scim.Codec
	// RetryAttempts bounds the optimistic retry loop; 0 means default.
	RetryAttempts int
}

// Store persists accounts as fan-out items in one wide-column table.
// It is safe for concurrent use; all state is immutable after creation.
type Store struct {
	client     dynamo.Client
	table      *schema.Table
	codec      scim.Codec
	allowScans bool
	attempts   int

	now   func() time.Time
	newID func() string
}

// NewStore creates a Store over tableName (empty means TableName).
func NewStore(client dynamo.Client, tableName string, opts Options) *Store {
	codec := opts.Codec
	if codec == nil {
		codec = scim.JSONCodec{}
	}
	return &Store{
		client:     client,
		table:      NewTable(tableName),
		codec:      codec,
		allowScans: opts.AllowTableScans,
		attempts:   opts.RetryAttempts,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Create persists a new account under a fresh accountId. Every fan-out
// item is written in one transaction, each guarded by a "does not
// exist" precondition, so a clash on any unique attribute aborts the
// whole create with ErrConflict.
func (s *Store) Create(ctx context.Context, attrs scim.Attributes) (*Record, error) {
	userName, ok := attrs.String(scim.AttrUserName)
	if !ok {
		return nil, errors.New("userName is required")
	}
	now := s.now().Unix()
	record := &Record{
		AccountID: s.newID(),
		UserName:  userName,
		Email:     attrs.StringOr(scim.AttrEmail, ""),
		Phone:     attrs.StringOr(scim.AttrPhone, ""),
		Password:  attrs.StringOr(scim.AttrPassword, ""),
		Created:   now,
		Updated:   now,
		Version:   0,
		Extra:     extraOf(attrs),
	}
	if active, ok := attrs.Bool(scim.AttrActive); ok {
		record.Active = active
	}

	common, err := s.marshalRecord(record)
	if err != nil {
		return nil, err
	}
	writes := make([]types.TransactWriteItem, 0, 4)
	for _, pk := range record.Keys() {
		item := make(dynamo.Item, len(common)+1)
		for k, v := range common {
			item[k] = v
		}
		item[dynamo.AttrPK] = &types.AttributeValueMemberS{Value: pk}
		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.table.Name),
				Item:                item,
				ConditionExpression: aws.String(createCondition),
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		if dynamo.IsTransactionConditionFailure(err) {
			return nil, fmt.Errorf("%w: uniqueness check failed", ErrConflict)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return record, nil
}

// GetByID returns the account, or nil when absent.
func (s *Store) GetByID(ctx context.Context, accountID string) (*Record, error) {
	return s.getByKey(ctx, attrAccountID.UniquenessValue(accountID))
}

// GetByUserName returns the account, or nil when absent.
func (s *Store) GetByUserName(ctx context.Context, userName string) (*Record, error) {
	return s.getByKey(ctx, attrUserName.UniquenessValue(userName))
}

// GetByEmail returns the account, or nil when absent.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Record, error) {
	return s.getByKey(ctx, attrEmail.UniquenessValue(email))
}

// GetByPhone returns the account, or nil when absent.
func (s *Store) GetByPhone(ctx context.Context, phone string) (*Record, error) {
	return s.getByKey(ctx, attrPhone.UniquenessValue(phone))
}

// getByKey is a strongly-consistent point read. Every fan-out item
// carries the full payload, so any key answers the whole account.
func (s *Store) getByKey(ctx context.Context, pk string) (*Record, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table.Name),
		Key:            dynamo.Item{dynamo.AttrPK: &types.AttributeValueMemberS{Value: pk}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if output.Item == nil {
		return nil, nil
	}
	return s.unmarshalRecord(output.Item)
}

// Delete removes every fan-out item of the account in one transaction
// guarded by the observed version. Deleting an absent account succeeds.
func (s *Store) Delete(ctx context.Context, accountID string) error {
	_, err := retry.Do(ctx, s.attempts, func(ctx context.Context) (retry.Result[struct{}], error) {
		var done retry.Result[struct{}]
		observed, err := s.GetByID(ctx, accountID)
		if err != nil {
			return done, err
		}
		if observed == nil {
			return retry.Success(struct{}{}), nil
		}

		condition := map[string]types.AttributeValue{
			":version":   versionValue(observed.Version),
			":accountId": &types.AttributeValueMemberS{Value: observed.AccountID},
		}
		writes := make([]types.TransactWriteItem, 0, 4)
		for _, pk := range observed.Keys() {
			writes = append(writes, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName:                 aws.String(s.table.Name),
					Key:                       dynamo.Item{dynamo.AttrPK: &types.AttributeValueMemberS{Value: pk}},
					ConditionExpression:       aws.String(versionCondition),
					ExpressionAttributeValues: condition,
				},
			})
		}

		_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: writes,
		})
		if err != nil {
			if dynamo.IsTransactionConditionFailure(err) {
				return retry.Failure[struct{}](fmt.Errorf("%w: unable to delete", ErrConflict)), nil
			}
			return done, fmt.Errorf("delete account: %w", err)
		}
		return retry.Success(struct{}{}), nil
	})
	return err
}

// Update replaces the account's attributes. The password and created
// timestamp are preserved; the version increments by one. Updating an
// absent account is a successful no-op returning nil.
func (s *Store) Update(ctx context.Context, accountID string, attrs scim.Attributes) (*Record, error) {
	return retry.Do(ctx, s.attempts, func(ctx context.Context) (retry.Result[*Record], error) {
		observed, err := s.GetByID(ctx, accountID)
		if err != nil {
			return retry.Result[*Record]{}, err
		}
		if observed == nil {
			return retry.Success[*Record](nil), nil
		}
		return s.writeUpdate(ctx, observed, s.nextRecord(observed, attrs))
	})
}

// Patch applies a SCIM attribute update onto the observed attributes.
// Password changes are silently ignored; use UpdatePassword.
func (s *Store) Patch(ctx context.Context, accountID string, update scim.AttributeUpdate) (*Record, error) {
	return retry.Do(ctx, s.attempts, func(ctx context.Context) (retry.Result[*Record], error) {
		observed, err := s.GetByID(ctx, accountID)
		if err != nil {
			return retry.Result[*Record]{}, err
		}
		if observed == nil {
			return retry.Success[*Record](nil), nil
		}
		merged := update.ApplyTo(observed.ToSCIM())
		delete(merged, scim.AttrPassword)
		return s.writeUpdate(ctx, observed, s.nextRecord(observed, merged))
	})
}

// UpdatePassword replaces the password on every fan-out item of the
// account owning userName. Absent userName is a successful no-op.
func (s *Store) UpdatePassword(ctx context.Context, userName, newPassword string) error {
	_, err := retry.Do(ctx, s.attempts, func(ctx context.Context) (retry.Result[*Record], error) {
		observed, err := s.GetByUserName(ctx, userName)
		if err != nil {
			return retry.Result[*Record]{}, err
		}
		if observed == nil {
			return retry.Success[*Record](nil), nil
		}
		next := *observed
		next.Password = newPassword
		next.Version = observed.Version + 1
		next.Updated = s.now().Unix()
		return s.writeUpdate(ctx, observed, &next)
	})
	return err
}

// Credentials is the projection VerifyPassword returns. The store hands
// back the stored hash; comparing it against the presented password is
// the caller's job.
type Credentials struct {
	AccountID string
	UserName  string
	Password  string
	Active    bool
}

// VerifyPassword fetches the credential projection for userName.
// Returns nil when the account is absent or inactive.
func (s *Store) VerifyPassword(ctx context.Context, userName string) (*Credentials, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table.Name),
		Key: dynamo.Item{
			dynamo.AttrPK: &types.AttributeValueMemberS{Value: attrUserName.UniquenessValue(userName)},
		},
		ProjectionExpression: aws.String(AttrAccountID + ", " + AttrUserName + ", " + AttrPassword + ", " + AttrActive),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if output.Item == nil {
		return nil, nil
	}
	creds := &Credentials{
		AccountID: optionalString(output.Item, AttrAccountID),
		UserName:  optionalString(output.Item, AttrUserName),
		Password:  optionalString(output.Item, AttrPassword),
	}
	if b, ok := output.Item[AttrActive].(*types.AttributeValueMemberBOOL); ok {
		creds.Active = b.Value
	}
	if !creds.Active {
		return nil, nil
	}
	return creds, nil
}

// GetAll lists accounts matching the query: plan, execute, re-filter,
// dedupe by accountId in first-seen order, sort, page, project.
func (s *Store) GetAll(ctx context.Context, query scim.ResourceQuery) ([]scim.Attributes, error) {
	records, err := s.collect(ctx, query.Filter)
	if err != nil {
		return nil, err
	}
	if err := s.sortRecords(records, query); err != nil {
		return nil, err
	}

	start := query.StartIndex
	if start < 0 {
		start = 0
	}
	if start > len(records) {
		start = len(records)
	}
	end := len(records)
	if query.Count > 0 && start+query.Count < end {
		end = start + query.Count
	}

	results := make([]scim.Attributes, 0, end-start)
	for _, record := range records[start:end] {
		results = append(results, record.ToSCIM().Project(query.Attributes))
	}
	return results, nil
}

// collect executes the planned access path and returns matching
// records deduplicated by accountId in first-seen order.
func (s *Store) collect(ctx context.Context, filterText string) ([]*Record, error) {
	var records []*Record
	visited := make(map[string]bool)
	add := func(record *Record) {
		if !visited[record.AccountID] {
			visited[record.AccountID] = true
			records = append(records, record)
		}
	}

	if filterText == "" {
		if !s.allowScans {
			return nil, ErrQueryRequiresTableScan
		}
		input, err := plan.EmitScan(s.table, nil, PrefixAccountID)
		if err != nil {
			return nil, err
		}
		for item, err := range dynamo.ScanItems(ctx, s.client, input) {
			if err != nil {
				return nil, err
			}
			record, err := s.unmarshalRecord(item)
			if err != nil {
				return nil, err
			}
			add(record)
		}
		return records, nil
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
		input, err := plan.EmitScan(s.table, p.ScanFilter, PrefixAccountID)
		if err != nil {
			return nil, err
		}
		for item, err := range dynamo.ScanItems(ctx, s.client, input) {
			if err != nil {
				return nil, err
			}
			record, err := s.unmarshalRecord(item)
			if err != nil {
				return nil, err
			}
			if !plan.MatchesDNF(p.ScanFilter, record.valueOf) {
				continue
			}
			add(record)
		}
		return records, nil
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
			record, err := s.unmarshalRecord(item)
			if err != nil {
				return nil, err
			}
			if !plan.Matches(q.Residuals, record.valueOf) {
				continue
			}
			add(record)
		}
	}
	return records, nil
}

func (s *Store) sortRecords(records []*Record, query scim.ResourceQuery) error {
	if query.SortBy == "" {
		return nil
	}
	attr := s.table.Resolve(query.SortBy)
	if attr == nil || !attr.Sortable {
		return fmt.Errorf("%w: cannot sort by %q", plan.ErrUnsupportedQuery, query.SortBy)
	}
	sort.SliceStable(records, func(i, j int) bool {
		cmp := compareRecords(records[i], records[j], attr)
		if query.Ascending {
			return cmp < 0
		}
		return cmp > 0
	})
	return nil
}

// compareRecords orders missing values before present ones.
func compareRecords(a, b *Record, attr *schema.Attribute) int {
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

// nextRecord builds the replacement record for an update: identity,
// created timestamp, and password are preserved from the observed
// record; everything else comes from the new attribute set.
func (s *Store) nextRecord(observed *Record, attrs scim.Attributes) *Record {
	return &Record{
		AccountID: observed.AccountID,
		UserName:  attrs.StringOr(scim.AttrUserName, observed.UserName),
		Email:     attrs.StringOr(scim.AttrEmail, ""),
		Phone:     attrs.StringOr(scim.AttrPhone, ""),
		Password:  observed.Password,
		Active:    boolOr(attrs, scim.AttrActive, observed.Active),
		Created:   observed.Created,
		Updated:   s.now().Unix(),
		Version:   observed.Version + 1,
		Extra:     extraOf(attrs),
	}
}

// writeUpdate submits the transaction for one optimistic attempt.
func (s *Store) writeUpdate(ctx context.Context, observed, next *Record) (retry.Result[*Record], error) {
	var failed retry.Result[*Record]
	common, err := s.marshalRecord(next)
	if err != nil {
		return failed, err
	}
	builder := NewUpdateBuilder(s.table.Name, common, observed.AccountID, observed.Version)
	builder.HandleUniqueAttribute(attrUserName, observed.UserName, next.UserName)
	builder.HandleUniqueAttribute(attrEmail, observed.Email, next.Email)
	builder.HandleUniqueAttribute(attrPhone, observed.Phone, next.Phone)
	writes, err := builder.Build(next.MainKey())
	if err != nil {
		return failed, err
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		if dynamo.IsTransactionConditionFailure(err) {
			return retry.Failure[*Record](fmt.Errorf("%w: concurrent modification", ErrConflict)), nil
		}
		return failed, fmt.Errorf("update account: %w", err)
	}
	return retry.Success(next), nil
}

// extraOf strips the core attributes, keeping only the open bag.
func extraOf(attrs scim.Attributes) scim.Attributes {
	extra := scim.Attributes{}
	for k, v := range attrs {
		if !coreAttributes[k] {
			extra[k] = v
		}
	}
	return extra
}

func boolOr(attrs scim.Attributes, name string, def bool) bool {
	if v, ok := attrs.Bool(name); ok {
		return v
	}
	return def
}

func versionValue(version int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version)}
}
