package dynamo

// AttrPK is the partition key attribute shared by every table in this
// module. None of the tables use a sort key; uniqueness namespaces are
// encoded into the pk value itself.
const AttrPK = "pk"
