package reconcile

import "fmt"

// Store operations reported in a StoreError
const (
	OpGet      = "get"
	OpUpsert   = "upsert"
	OpRegister = "register"
)

// StoreError reports a version store failure for a single repository.
type StoreError struct {
	RepoKey string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed for %s: %v", e.Op, e.RepoKey, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
