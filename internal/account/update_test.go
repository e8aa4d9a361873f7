package account

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/idstack-io/scim-accounts/internal/dynamo"
)

func testCommon() dynamo.Item {
	return dynamo.Item{
		AttrAccountID: &types.AttributeValueMemberS{Value: "acc-1"},
		AttrVersion:   &types.AttributeValueMemberN{Value: "3"},
	}
}

type writeShape struct {
	put       bool
	pk        string
	condition string
}

func shapesOf(t *testing.T, writes []types.TransactWriteItem) []writeShape {
	t.Helper()
	shapes := make([]writeShape, 0, len(writes))
	for _, w := range writes {
		switch {
		case w.Put != nil:
			shapes = append(shapes, writeShape{
				put:       true,
				pk:        pkOf(w.Put.Item),
				condition: aws.ToString(w.Put.ConditionExpression),
			})
		case w.Delete != nil:
			shapes = append(shapes, writeShape{
				pk:        pkOf(w.Delete.Key),
				condition: aws.ToString(w.Delete.ConditionExpression),
			})
		default:
			t.Fatalf("unexpected write %+v", w)
		}
	}
	return shapes
}

func TestUpdateBuilderUnchangedValueReplaces(t *testing.T) {
	b := NewUpdateBuilder("t", testCommon(), "acc-1", 2)
	b.HandleUniqueAttribute(attrEmail, "a@x.io", "a@x.io")
	writes, err := b.Build("ai#acc-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := shapesOf(t, writes)
	want := []writeShape{
		{put: true, pk: "em#a@x.io", condition: versionCondition},
		{put: true, pk: "ai#acc-1", condition: versionCondition},
	}
	assertShapes(t, got, want)
}

func TestUpdateBuilderAddedValuePutsWithCreateGuard(t *testing.T) {
	b := NewUpdateBuilder("t", testCommon(), "acc-1", 2)
	b.HandleUniqueAttribute(attrEmail, "", "a@x.io")
	writes, err := b.Build("ai#acc-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := shapesOf(t, writes)
	want := []writeShape{
		{put: true, pk: "em#a@x.io", condition: createCondition},
		{put: true, pk: "ai#acc-1", condition: versionCondition},
	}
	assertShapes(t, got, want)
}

func TestUpdateBuilderRemovedValueDeletes(t *testing.T) {
	b := NewUpdateBuilder("t", testCommon(), "acc-1", 2)
	b.HandleUniqueAttribute(attrEmail, "a@x.io", "")
	writes, err := b.Build("ai#acc-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := shapesOf(t, writes)
	want := []writeShape{
		{pk: "em#a@x.io", condition: versionCondition},
		{put: true, pk: "ai#acc-1", condition: versionCondition},
	}
	assertShapes(t, got, want)
}

func TestUpdateBuilderChangedValueMovesKey(t *testing.T) {
	b := NewUpdateBuilder("t", testCommon(), "acc-1", 2)
	b.HandleUniqueAttribute(attrUserName, "alice", "alice2")
	writes, err := b.Build("ai#acc-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := shapesOf(t, writes)
	want := []writeShape{
		{pk: "un#alice", condition: versionCondition},
		{put: true, pk: "un#alice2", condition: createCondition},
		{put: true, pk: "ai#acc-1", condition: versionCondition},
	}
	assertShapes(t, got, want)
}

func TestUpdateBuilderBothEmptyContributesNothing(t *testing.T) {
	b := NewUpdateBuilder("t", testCommon(), "acc-1", 2)
	b.HandleUniqueAttribute(attrPhone, "", "")
	writes, err := b.Build("ai#acc-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(writes) != 1 {
		t.Fatalf("writes = %d, want only the main replace", len(writes))
	}
}

func TestUpdateBuilderCarriesVersionGuardValues(t *testing.T) {
	b := NewUpdateBuilder("t", testCommon(), "acc-1", 7)
	writes, err := b.Build("ai#acc-1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	values := writes[0].Put.ExpressionAttributeValues
	if v := values[":version"].(*types.AttributeValueMemberN).Value; v != "7" {
		t.Errorf(":version = %q", v)
	}
	if v := values[":accountId"].(*types.AttributeValueMemberS).Value; v != "acc-1" {
		t.Errorf(":accountId = %q", v)
	}
}

func assertShapes(t *testing.T, got, want []writeShape) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("writes = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("write %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
