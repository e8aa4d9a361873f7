// Package account implements the account store: one logical account is
// fanned out into a main item plus one secondary item per unique
// attribute, all sharing a version counter and the full payload, so that
// every lookup key supports a strongly-consistent single-item read.
package account

import (
	"github.com/idstack-io/scim-accounts/internal/dynamo"
	"github.com/idstack-io/scim-accounts/internal/schema"
)

// TableName is the default physical table.
const TableName = "curity-accounts"

// Uniqueness prefixes. Each unique attribute owns a pk namespace.
const (
	PrefixAccountID = "ai#"
	PrefixUserName  = "un#"
	PrefixEmail     = "em#"
	PrefixPhone     = "pn#"
)

// Attribute names for account items.
const (
	AttrAccountID = "accountId"
	AttrUserName  = "userName"
	AttrEmail     = "email"
	AttrPhone     = "phone"
	AttrPassword  = "password"
	AttrActive    = "active"
	AttrCreated   = "created"
	AttrUpdated   = "updated"
	AttrVersion   = "version"
	AttrBlob      = "attributes"
)

// Attribute descriptors. The planner compares these by pointer, so each
// exists exactly once.
var (
	attrAccountID = &schema.Attribute{Name: AttrAccountID, Kind: schema.KindString, UniquePrefix: PrefixAccountID, Sortable: true}
	attrUserName  = &schema.Attribute{Name: AttrUserName, Kind: schema.KindString, UniquePrefix: PrefixUserName, Sortable: true}
	attrEmail     = &schema.Attribute{Name: AttrEmail, Kind: schema.KindString, UniquePrefix: PrefixEmail, Sortable: true}
	attrPhone     = &schema.Attribute{Name: AttrPhone, Kind: schema.KindString, UniquePrefix: PrefixPhone, Sortable: true}
	attrActive    = &schema.Attribute{Name: AttrActive, Kind: schema.KindBool}
	attrCreated   = &schema.Attribute{Name: AttrCreated, Kind: schema.KindNumber, Sortable: true}
	attrUpdated   = &schema.Attribute{Name: AttrUpdated, Kind: schema.KindNumber, Sortable: true}
	attrPK        = &schema.Attribute{Name: dynamo.AttrPK, Kind: schema.KindString}
)

// NewTable describes the accounts table for the planner. The four
// unnamed indexes expose each unique attribute as an indexable equality
// via its pk namespace; uniqueness itself comes from the fan-out items,
// not from store-side secondary indexes.
func NewTable(name string) *schema.Table {
	if name == "" {
		name = TableName
	}
	return &schema.Table{
		Name:    name,
		Primary: attrPK,
		Indexes: []schema.Index{
			{Partition: attrAccountID},
			{Partition: attrUserName},
			{Partition: attrEmail},
			{Partition: attrPhone},
		},
		Paths: map[string]*schema.Attribute{
			"id":                 attrAccountID,
			"userName":           attrUserName,
			"email":              attrEmail,
			"emails.value":       attrEmail,
			"phone":              attrPhone,
			"phoneNumbers.value": attrPhone,
			"active":             attrActive,
			"meta.created":       attrCreated,
			"meta.lastModified":  attrUpdated,
		},
	}
}
