// Package scim carries the SCIM-facing value types exchanged with the
// hosting identity server: the open attribute bag, patch updates, and
// resource queries.
package scim

import "encoding/json"

// Well-known attribute names.
const (
	AttrID         = "id"
	AttrUserName   = "userName"
	AttrEmail      = "email"
	AttrPhone      = "phone"
	AttrPassword   = "password"
	AttrActive     = "active"
	AttrMeta       = "meta"
	AttrCreated    = "created"
	AttrLastMod    = "lastModified"
	AttrLinkedAccs = "linkedAccounts"
)

// Attributes is an open SCIM attribute bag.
type Attributes map[string]any

// String returns the named attribute if it is a non-empty string.
func (a Attributes) String(name string) (string, bool) {
	v, ok := a[name].(string)
	return v, ok && v != ""
}

// StringOr returns the named string attribute or def.
func (a Attributes) StringOr(name, def string) string {
	if v, ok := a.String(name); ok {
		return v
	}
	return def
}

// Bool returns the named attribute if it is a boolean.
func (a Attributes) Bool(name string) (bool, bool) {
	v, ok := a[name].(bool)
	return v, ok
}

// Clone returns a shallow copy of the bag.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// WithoutPassword returns a copy of the bag with the password removed.
// Password material never leaves the store except through VerifyPassword.
func (a Attributes) WithoutPassword() Attributes {
	out := a.Clone()
	delete(out, AttrPassword)
	return out
}

// Project returns a copy limited to the requested attribute names.
// An empty request keeps everything.
func (a Attributes) Project(names []string) Attributes {
	if len(names) == 0 {
		return a.Clone()
	}
	out := make(Attributes, len(names))
	for _, name := range names {
		if v, ok := a[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Codec serializes the attribute bag to and from its storage blob.
// The zero-value stores default to JSONCodec.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default Codec, backed by encoding/json.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error    { return json.Unmarshal(b, v) }
