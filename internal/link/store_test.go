package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/idstack-io/scim-accounts/internal/dynamo"
)

// fakeLinks is an in-memory link table with a naive list-links-index.
type fakeLinks struct {
	dynamo.Client
	items map[string]dynamo.Item
}

func newFakeLinks() *fakeLinks {
	return &fakeLinks{items: map[string]dynamo.Item{}}
}

func strAttr(item dynamo.Item, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeLinks) GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if item, ok := f.items[strAttr(input.Key, "pk")]; ok {
		return &dynamodb.GetItemOutput{Item: item}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeLinks) PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	pk := strAttr(input.Item, "pk")
	if aws.ToString(input.ConditionExpression) == "attribute_not_exists(pk)" {
		if _, exists := f.items[pk]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	}
	f.items[pk] = input.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeLinks) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, strAttr(input.Key, "pk"))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeLinks) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	local := strAttr(input.ExpressionAttributeValues, ":local")
	manager := strAttr(input.ExpressionAttributeValues, ":manager")
	out := &dynamodb.QueryOutput{}
	for _, item := range f.items {
		if strAttr(item, "localAccountId") != local {
			continue
		}
		if manager != "" && strAttr(item, "linkingAccountManager") != manager {
			continue
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func newTestStore(fake *fakeLinks) *Store {
	s := NewStore(fake, "")
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	fake := newFakeLinks()
	s := newTestStore(fake)

	created, err := s.Create(ctx, "ext-1", "idp.example.com", "acc-1", "github")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ForeignKey != "ext-1@idp.example.com" {
		t.Errorf("foreign key = %q", created.ForeignKey)
	}

	got, err := s.Get(ctx, "ext-1", "idp.example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.LocalAccountID != "acc-1" || got.LinkingAccountManager != "github" {
		t.Fatalf("got %+v", got)
	}
	if got.Created != 1700000000 {
		t.Errorf("created = %d", got.Created)
	}

	if absent, err := s.Get(ctx, "nope", "idp.example.com"); err != nil || absent != nil {
		t.Errorf("absent = (%+v, %v), want (nil, nil)", absent, err)
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeLinks())

	if _, err := s.Create(ctx, "ext-1", "idp.example.com", "acc-1", "github"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Create(ctx, "ext-1", "idp.example.com", "acc-2", "github")
	if !errors.Is(err, ErrLinkExists) {
		t.Fatalf("err = %v, want ErrLinkExists", err)
	}
}

func TestListFiltersByManager(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newFakeLinks())

	seed := []struct{ id, domain, local, manager string }{
		{"ext-1", "a.example.com", "acc-1", "github"},
		{"ext-2", "b.example.com", "acc-1", "google"},
		{"ext-3", "a.example.com", "acc-2", "github"},
	}
	for _, l := range seed {
		if _, err := s.Create(ctx, l.id, l.domain, l.local, l.manager); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := s.List(ctx, "acc-1", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}

	github, err := s.List(ctx, "acc-1", "github")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(github) != 1 || github[0].ForeignKey != "ext-1@a.example.com" {
		t.Errorf("github links = %+v", github)
	}
}

func TestDeleteAllFor(t *testing.T) {
	ctx := context.Background()
	fake := newFakeLinks()
	s := newTestStore(fake)

	for _, id := range []string{"ext-1", "ext-2"} {
		if _, err := s.Create(ctx, id, "a.example.com", "acc-1", "github"); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := s.Create(ctx, "ext-3", "a.example.com", "acc-2", "github"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.DeleteAllFor(ctx, "acc-1"); err != nil {
		t.Fatalf("DeleteAllFor: %v", err)
	}
	if len(fake.items) != 1 {
		t.Errorf("items = %d, want only acc-2's link", len(fake.items))
	}

	// Deleting an absent link is a no-op.
	if err := s.Delete(ctx, "ext-1", "a.example.com"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}
