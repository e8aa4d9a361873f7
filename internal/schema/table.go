package schema

// Index declares one way a table can be queried. A zero Name marks a
// primary-key lookup: the partition attribute's value (prefixed for
// unique attributes) is matched against the table's partition key.
// A non-zero Name is a global secondary index over the attribute's own
// column.
type Index struct {
	Name      string
	Partition *Attribute
	Sort      *Attribute
}

// Table enumerates a table's attributes and the indexes the planner may
// choose from. Index declaration order breaks selection ties.
type Table struct {
	// Name is the physical table name.
	Name string
	// Primary is the partition key attribute of the table itself.
	Primary *Attribute
	// Indexes lists queryable access paths in preference order.
	Indexes []Index
	// Paths maps logical SCIM paths to attributes. Unknown paths make
	// a filter unsupported.
	Paths map[string]*Attribute
}

// Resolve maps a logical SCIM path to its attribute, or nil.
func (t *Table) Resolve(path string) *Attribute {
	return t.Paths[path]
}
