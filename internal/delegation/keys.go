// Package delegation persists issued token delegations. Unlike
// accounts, delegations are single items keyed by id; querying goes
// through the shared planner against three secondary indexes.
package delegation

import "github.com/idstack-io/scim-accounts/internal/schema"

// TableName is the default physical table.
const TableName = "curity-delegations"

// Secondary index names.
const (
	OwnerStatusIndex       = "owner-status-index"
	ClientStatusIndex      = "clientId-status-index"
	AuthorizationHashIndex = "authorization-hash-index"
)

// Delegation status values.
const (
	StatusIssued  = "issued"
	StatusRevoked = "revoked"
)

// Attribute names for delegation items.
const (
	AttrID          = "id"
	AttrOwner       = "owner"
	AttrClientID    = "clientId"
	AttrStatus      = "status"
	AttrAuthHash    = "authorizationCodeHash"
	AttrExpires     = "expires"
	AttrRedirectURI = "redirectUri"
)

var (
	attrID          = &schema.Attribute{Name: AttrID, Kind: schema.KindString}
	attrOwner       = &schema.Attribute{Name: AttrOwner, Kind: schema.KindString, Sortable: true}
	attrClientID    = &schema.Attribute{Name: AttrClientID, Kind: schema.KindString, Sortable: true}
	attrStatus      = &schema.Attribute{Name: AttrStatus, Kind: schema.KindString}
	attrAuthHash    = &schema.Attribute{Name: AttrAuthHash, Kind: schema.KindString}
	attrExpires     = &schema.Attribute{Name: AttrExpires, Kind: schema.KindNumber, Sortable: true}
	attrRedirectURI = &schema.Attribute{Name: AttrRedirectURI, Kind: schema.KindString}
)

// NewTable describes the delegations table for the planner: the id
// primary key plus the three secondary indexes. redirect_uri resolves
// but has no index, so filters on it degrade to a scan.
func NewTable(name string) *schema.Table {
	if name == "" {
		name = TableName
	}
	return &schema.Table{
		Name:    name,
		Primary: attrID,
		Indexes: []schema.Index{
			{Partition: attrID},
			{Name: OwnerStatusIndex, Partition: attrOwner, Sort: attrStatus},
			{Name: ClientStatusIndex, Partition: attrClientID, Sort: attrStatus},
			{Name: AuthorizationHashIndex, Partition: attrAuthHash},
		},
		Paths: map[string]*schema.Attribute{
			"id":                    attrID,
			"owner":                 attrOwner,
			"clientId":              attrClientID,
			"status":                attrStatus,
			"authorizationCodeHash": attrAuthHash,
			"expires":               attrExpires,
			"redirect_uri":          attrRedirectURI,
		},
	}
}
