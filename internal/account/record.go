package account

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/idstack-io/scim-accounts/internal/dynamo"
	"github.com/idstack-io/scim-accounts/internal/scim"
)

// Record is the decoded form of an account item. Every fan-out item of
// an account carries the same Record; only the pk differs.
type Record struct {
	AccountID string
	UserName  string
	Email     string
	Phone     string
	Password  string
	Active    bool
	Created   int64
	Updated   int64
	Version   int64
	// Extra is the open SCIM attribute bag serialized into the
	// attributes blob.
	Extra scim.Attributes
}

// Keys returns every pk value the account's fan-out occupies: the main
// item, the userName item, and the email/phone items when set.
func (r *Record) Keys() []string {
	keys := []string{
		attrAccountID.UniquenessValue(r.AccountID),
		attrUserName.UniquenessValue(r.UserName),
	}
	if r.Email != "" {
		keys = append(keys, attrEmail.UniquenessValue(r.Email))
	}
	if r.Phone != "" {
		keys = append(keys, attrPhone.UniquenessValue(r.Phone))
	}
	return keys
}

// MainKey returns the pk of the main item.
func (r *Record) MainKey() string {
	return attrAccountID.UniquenessValue(r.AccountID)
}

// valueOf exposes the record to residual filter evaluation.
func (r *Record) valueOf(column string) (any, bool) {
	switch column {
	case AttrAccountID:
		return r.AccountID, true
	case AttrUserName:
		return r.UserName, true
	case AttrEmail:
		if r.Email == "" {
			return nil, false
		}
		return r.Email, true
	case AttrPhone:
		if r.Phone == "" {
			return nil, false
		}
		return r.Phone, true
	case AttrActive:
		return r.Active, true
	case AttrCreated:
		return r.Created, true
	case AttrUpdated:
		return r.Updated, true
	case AttrVersion:
		return r.Version, true
	}
	v, ok := r.Extra[column]
	return v, ok
}

// ToSCIM renders the record as SCIM attributes. The password never
// appears; meta carries the server-assigned timestamps and version.
func (r *Record) ToSCIM() scim.Attributes {
	attrs := make(scim.Attributes, len(r.Extra)+6)
	for k, v := range r.Extra {
		attrs[k] = v
	}
	attrs[scim.AttrID] = r.AccountID
	attrs[scim.AttrUserName] = r.UserName
	if r.Email != "" {
		attrs[scim.AttrEmail] = r.Email
	}
	if r.Phone != "" {
		attrs[scim.AttrPhone] = r.Phone
	}
	attrs[scim.AttrActive] = r.Active
	attrs[scim.AttrMeta] = map[string]any{
		scim.AttrCreated: time.Unix(r.Created, 0).UTC().Format(time.RFC3339),
		scim.AttrLastMod: time.Unix(r.Updated, 0).UTC().Format(time.RFC3339),
		AttrVersion:      r.Version,
	}
	return attrs
}

// marshalRecord builds the common item shared by all fan-out writes.
// The pk attribute is added per item by the caller.
func (s *Store) marshalRecord(r *Record) (dynamo.Item, error) {
	item := dynamo.Item{
		AttrAccountID: &types.AttributeValueMemberS{Value: r.AccountID},
		AttrUserName:  &types.AttributeValueMemberS{Value: r.UserName},
		AttrActive:    &types.AttributeValueMemberBOOL{Value: r.Active},
		AttrCreated:   &types.AttributeValueMemberN{Value: strconv.FormatInt(r.Created, 10)},
		AttrUpdated:   &types.AttributeValueMemberN{Value: strconv.FormatInt(r.Updated, 10)},
		AttrVersion:   &types.AttributeValueMemberN{Value: strconv.FormatInt(r.Version, 10)},
	}
	if r.Email != "" {
		item[AttrEmail] = &types.AttributeValueMemberS{Value: r.Email}
	}
	if r.Phone != "" {
		item[AttrPhone] = &types.AttributeValueMemberS{Value: r.Phone}
	}
	if r.Password != "" {
		item[AttrPassword] = &types.AttributeValueMemberS{Value: r.Password}
	}
	if len(r.Extra) > 0 {
		blob, err := s.codec.Marshal(r.Extra)
		if err != nil {
			return nil, fmt.Errorf("marshal attributes blob: %w", err)
		}
		item[AttrBlob] = &types.AttributeValueMemberS{Value: string(blob)}
	}
	return item, nil
}

// unmarshalRecord decodes a fan-out item. A missing required attribute
// is a schema error and fails the whole operation.
func (s *Store) unmarshalRecord(item dynamo.Item) (*Record, error) {
	r := &Record{}
	var err error
	if r.AccountID, err = requireString(item, AttrAccountID); err != nil {
		return nil, err
	}
	if r.UserName, err = requireString(item, AttrUserName); err != nil {
		return nil, err
	}
	if r.Version, err = requireNumber(item, AttrVersion); err != nil {
		return nil, err
	}
	if r.Created, err = requireNumber(item, AttrCreated); err != nil {
		return nil, err
	}
	if r.Updated, err = requireNumber(item, AttrUpdated); err != nil {
		return nil, err
	}
	r.Email = optionalString(item, AttrEmail)
	r.Phone = optionalString(item, AttrPhone)
	r.Password = optionalString(item, AttrPassword)
	if b, ok := item[AttrActive].(*types.AttributeValueMemberBOOL); ok {
		r.Active = b.Value
	}
	if blob, ok := item[AttrBlob].(*types.AttributeValueMemberS); ok {
		extra := scim.Attributes{}
		if err := s.codec.Unmarshal([]byte(blob.Value), &extra); err != nil {
			return nil, fmt.Errorf("unmarshal attributes blob: %w", err)
		}
		r.Extra = extra
	}
	return r, nil
}

func requireString(item dynamo.Item, name string) (string, error) {
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok || v.Value == "" {
		return "", fmt.Errorf("account item missing required attribute %s", name)
	}
	return v.Value, nil
}

func requireNumber(item dynamo.Item, name string) (int64, error) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("account item missing required attribute %s", name)
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("account item attribute %s: %w", name, err)
	}
	return n, nil
}

func optionalString(item dynamo.Item, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
