package manifest

import "fmt"

// FetchError is returned when the manifest cannot be retrieved or decoded.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch manifest from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ShapeError is returned when the decoded manifest lacks required structure.
type ShapeError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid manifest %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid manifest %s: %s", e.URL, e.Reason)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}
