package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/idstack-io/scim-accounts/internal/account"
	"github.com/idstack-io/scim-accounts/internal/plan"
	"github.com/idstack-io/scim-accounts/internal/scim"
)

type stubLister struct {
	got       scim.ResourceQuery
	resources []scim.Attributes
	err       error
}

func (s *stubLister) GetAll(ctx context.Context, query scim.ResourceQuery) ([]scim.Attributes, error) {
	s.got = query
	return s.resources, s.err
}

func TestHandlePassesQueryThrough(t *testing.T) {
	stub := &stubLister{resources: []scim.Attributes{{"userName": "alice"}}}
	h := newHandler(stub)

	resp, err := h.handle(context.Background(), QueryRequest{
		Filter:     `userName sw "a"`,
		SortBy:     "userName",
		Ascending:  true,
		StartIndex: 2,
		Count:      5,
		Attributes: []string{"id", "userName"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(resp.Resources) != 1 || resp.Resources[0]["userName"] != "alice" {
		t.Fatalf("resp = %+v", resp)
	}
	if stub.got.Filter != `userName sw "a"` || stub.got.Count != 5 || !stub.got.Ascending {
		t.Errorf("query not passed through: %+v", stub.got)
	}
}

func TestHandleEmptyResultIsNotNil(t *testing.T) {
	h := newHandler(&stubLister{})
	resp, err := h.handle(context.Background(), QueryRequest{})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.Resources == nil || len(resp.Resources) != 0 {
		t.Fatalf("resources = %#v, want empty non-nil slice", resp.Resources)
	}
}

func TestHandlePlannerRejectionsBecomeCodes(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("%w: unknown attribute", plan.ErrUnsupportedQuery), "unsupportedFilter"},
		{fmt.Errorf("%w: more than 8", plan.ErrTooManyQueries), "tooComplexFilter"},
		{account.ErrQueryRequiresTableScan, "filterRequiresTableScan"},
	}
	for _, tt := range tests {
		h := newHandler(&stubLister{err: tt.err})
		resp, err := h.handle(context.Background(), QueryRequest{Filter: "x"})
		if err != nil {
			t.Fatalf("%v must not be a Lambda error: %v", tt.err, err)
		}
		if resp.Error != tt.code {
			t.Errorf("err %v: code = %q, want %q", tt.err, resp.Error, tt.code)
		}
	}
}

func TestHandleStoreFailurePropagates(t *testing.T) {
	h := newHandler(&stubLister{err: errors.New("throttled")})
	if _, err := h.handle(context.Background(), QueryRequest{}); err == nil {
		t.Fatal("expected error")
	}
}
