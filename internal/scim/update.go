package scim

// AttributeUpdate describes a SCIM patch: attributes to add, replace,
// and remove. Additions and replacements are applied as plain sets;
// removals delete the attribute entirely.
type AttributeUpdate struct {
	Additions    Attributes
	Replacements Attributes
	Removals     []string
}

// ApplyTo returns a new bag with the update applied over base.
// Base is not modified.
func (u AttributeUpdate) ApplyTo(base Attributes) Attributes {
	out := base.Clone()
	for k, v := range u.Additions {
		out[k] = v
	}
	for k, v := range u.Replacements {
		out[k] = v
	}
	for _, k := range u.Removals {
		delete(out, k)
	}
	return out
}

// IsEmpty reports whether the update changes nothing.
func (u AttributeUpdate) IsEmpty() bool {
	return len(u.Additions) == 0 && len(u.Replacements) == 0 && len(u.Removals) == 0
}
