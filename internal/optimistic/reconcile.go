package optimistic

// Entity is any record with a stable, unique identifier.
type Entity interface {
	EntityID() string
}

// Replace returns a new collection where the element whose identifier equals
// tempID is replaced by real, keeping its position. Every other element is
// left untouched, so a concurrent mutation's still-pending placeholder
// survives. When no element matches (the placeholder may have been removed
// by a later user action before the call returned) the input is returned
// unchanged; that is not an error. The input collection is never mutated.
func Replace[T Entity](collection []T, tempID string, real T) []T {
	for i, el := range collection {
		if el.EntityID() == tempID {
			out := make([]T, len(collection))
			copy(out, collection)
			out[i] = real
			return out
		}
	}
	return collection
}

// Remove returns a new collection with the element whose identifier equals
// tempID removed, and the input unchanged when no element matches. The input
// collection is never mutated.
func Remove[T Entity](collection []T, tempID string) []T {
	for i, el := range collection {
		if el.EntityID() == tempID {
			out := make([]T, 0, len(collection)-1)
			out = append(out, collection[:i]...)
			out = append(out, collection[i+1:]...)
			return out
		}
	}
	return collection
}
