package vectordb

// Op constants name backend operations for error context.
const (
	OpPing             = "ping"
	OpCreateCollection = "create_collection"
	OpDropCollection   = "drop_collection"
	OpCollectionExists = "collection_exists"
	OpCollectionInfo   = "collection_info"
	OpCount            = "count"
	OpUpsert           = "upsert"
	OpQuery            = "query"
)

// Error wraps an underlying backend error with the operation name.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
