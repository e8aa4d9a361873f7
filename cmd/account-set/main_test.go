package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/idstack-io/scim-accounts/internal/account"
	"github.com/idstack-io/scim-accounts/internal/scim"
)

type stubWriter struct {
	created   *account.Record
	updated   *account.Record
	patched   *account.Record
	deleted   []string
	passwords map[string]string
	err       error
}

func (s *stubWriter) Create(ctx context.Context, attrs scim.Attributes) (*account.Record, error) {
	return s.created, s.err
}

func (s *stubWriter) Update(ctx context.Context, accountID string, attrs scim.Attributes) (*account.Record, error) {
	return s.updated, s.err
}

func (s *stubWriter) Patch(ctx context.Context, accountID string, update scim.AttributeUpdate) (*account.Record, error) {
	return s.patched, s.err
}

func (s *stubWriter) Delete(ctx context.Context, accountID string) error {
	s.deleted = append(s.deleted, accountID)
	return s.err
}

func (s *stubWriter) UpdatePassword(ctx context.Context, userName, newPassword string) error {
	if s.passwords == nil {
		s.passwords = map[string]string{}
	}
	s.passwords[userName] = newPassword
	return s.err
}

func TestHandleCreate(t *testing.T) {
	stub := &stubWriter{created: &account.Record{AccountID: "acc-1", UserName: "alice"}}
	h := newHandler(stub)

	resp, err := h.handle(context.Background(), SetRequest{
		Action:     ActionCreate,
		Attributes: scim.Attributes{"userName": "alice"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !resp.Found || resp.Account["userName"] != "alice" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHandleConflictBecomesResponseCode(t *testing.T) {
	stub := &stubWriter{err: fmt.Errorf("%w: uniqueness check failed", account.ErrConflict)}
	h := newHandler(stub)

	resp, err := h.handle(context.Background(), SetRequest{
		Action:     ActionCreate,
		Attributes: scim.Attributes{"userName": "alice"},
	})
	if err != nil {
		t.Fatalf("conflicts must not be Lambda errors: %v", err)
	}
	if resp.Error != "conflict" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHandleUpdateAbsentAccount(t *testing.T) {
	h := newHandler(&stubWriter{})
	resp, err := h.handle(context.Background(), SetRequest{Action: ActionUpdate, AccountID: "nope"})
	if err != nil || resp.Found {
		t.Fatalf("resp = %+v, %v", resp, err)
	}
}

func TestHandleDeleteAndSetPassword(t *testing.T) {
	stub := &stubWriter{}
	h := newHandler(stub)

	if _, err := h.handle(context.Background(), SetRequest{Action: ActionDelete, AccountID: "acc-1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(stub.deleted) != 1 || stub.deleted[0] != "acc-1" {
		t.Errorf("deleted = %v", stub.deleted)
	}

	if _, err := h.handle(context.Background(), SetRequest{
		Action:   ActionSetPassword,
		UserName: "alice",
		Password: "new-hash",
	}); err != nil {
		t.Fatalf("setPassword: %v", err)
	}
	if stub.passwords["alice"] != "new-hash" {
		t.Errorf("passwords = %v", stub.passwords)
	}
}

func TestHandleUnknownAction(t *testing.T) {
	h := newHandler(&stubWriter{})
	resp, err := h.handle(context.Background(), SetRequest{Action: "upsert"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.Error != "invalidRequest" {
		t.Fatalf("resp = %+v", resp)
	}
}
