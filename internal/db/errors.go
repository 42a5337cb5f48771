package db

import "errors"

var (
	ErrKeyNotFound   = errors.New("db: key not found")
	ErrIndexNotFound = errors.New("db: index not found")
	ErrIndexExists   = errors.New("db: index already exists")
)

// Operation labels attached to backend failures. Search ops name the query
// shape rather than the raw command since KNN and list both use FT.SEARCH.
const (
	OpCreateIndex = "create index"
	OpDropIndex   = "drop index"
	OpSearchKNN   = "knn search"
	OpSearchList  = "list search"
	OpHGetAll     = "read hash"
	OpHSet        = "write hash"
	OpExists      = "exists"
	OpGet         = "kv get"
	OpSet         = "kv set"
	OpMigrate     = "migrate"
)

// Error records which store operation failed. Callers match causes with
// errors.Is; Op only feeds log lines and wrapped messages.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return "db " + e.Op + " " + e.Key + ": " + e.Err.Error()
	}
	return "db " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
