package vector

import "fmt"

// UnavailableError reports that the vector store could not be reached.
// It is an infrastructure fault: the current request aborts without retry.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("vector store unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// DimensionMismatchError reports that the embedding dimension in use does
// not match the collection's fixed vector dimension. The collection is
// never altered: changing embedding models requires recreating it.
type DimensionMismatchError struct {
	Collection string
	Got        int
	Want       int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension %d does not match collection %q dimension %d",
		e.Got, e.Collection, e.Want)
}
