package main

import (
	"context"
	"errors"
	"testing"

	"github.com/idstack-io/scim-accounts/internal/account"
	"github.com/idstack-io/scim-accounts/internal/link"
)

type stubReader struct {
	byID       map[string]*account.Record
	byUserName map[string]*account.Record
	err        error
}

func (s *stubReader) GetByID(ctx context.Context, id string) (*account.Record, error) {
	return s.byID[id], s.err
}

func (s *stubReader) GetByUserName(ctx context.Context, userName string) (*account.Record, error) {
	return s.byUserName[userName], s.err
}

func (s *stubReader) GetByEmail(ctx context.Context, email string) (*account.Record, error) {
	return nil, s.err
}

func (s *stubReader) GetByPhone(ctx context.Context, phone string) (*account.Record, error) {
	return nil, s.err
}

type stubLinks struct {
	links []*link.Link
}

func (s *stubLinks) List(ctx context.Context, localAccountID, manager string) ([]*link.Link, error) {
	return s.links, nil
}

func TestHandleReturnsAccount(t *testing.T) {
	record := &account.Record{AccountID: "acc-1", UserName: "alice", Active: true}
	h := newHandler(&stubReader{byID: map[string]*account.Record{"acc-1": record}}, &stubLinks{})

	resp, err := h.handle(context.Background(), GetRequest{AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !resp.Found || resp.Account["userName"] != "alice" {
		t.Fatalf("resp = %+v", resp)
	}
	if _, ok := resp.Account["password"]; ok {
		t.Error("password leaked")
	}
}

func TestHandleLookupOrder(t *testing.T) {
	record := &account.Record{AccountID: "acc-1", UserName: "alice"}
	h := newHandler(&stubReader{byUserName: map[string]*account.Record{"alice": record}}, nil)

	resp, err := h.handle(context.Background(), GetRequest{UserName: "alice"})
	if err != nil || !resp.Found {
		t.Fatalf("resp = %+v, %v", resp, err)
	}

	// No selector at all means not found, not an error.
	resp, err = h.handle(context.Background(), GetRequest{})
	if err != nil || resp.Found {
		t.Fatalf("empty request = %+v, %v", resp, err)
	}
}

func TestHandleAttachesLinks(t *testing.T) {
	record := &account.Record{AccountID: "acc-1", UserName: "alice"}
	links := &stubLinks{links: []*link.Link{
		{ForeignKey: "ext-1@idp.example.com", LinkingAccountManager: "github"},
	}}
	h := newHandler(&stubReader{byID: map[string]*account.Record{"acc-1": record}}, links)

	resp, err := h.handle(context.Background(), GetRequest{AccountID: "acc-1", IncludeLinks: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	linked, ok := resp.Account["linkedAccounts"].([]map[string]any)
	if !ok || len(linked) != 1 || linked[0]["linkingAccountManager"] != "github" {
		t.Fatalf("linkedAccounts = %+v", resp.Account["linkedAccounts"])
	}
}

func TestHandlePropagatesStoreError(t *testing.T) {
	h := newHandler(&stubReader{err: errors.New("throttled")}, nil)
	if _, err := h.handle(context.Background(), GetRequest{AccountID: "acc-1"}); err == nil {
		t.Fatal("expected error")
	}
}
