package scim

// ResourceQuery describes a filtered, sorted, paginated listing request.
type ResourceQuery struct {
	// Filter is a SCIM filter expression; empty means "everything".
	Filter string
	// SortBy names the attribute to order by; empty means store order.
	SortBy    string
	Ascending bool
	// StartIndex is the zero-based offset into the sorted result.
	StartIndex int
	// Count caps the number of returned resources; 0 means no cap.
	Count int
	// Attributes limits the returned attribute set; empty means all.
	Attributes []string
}
