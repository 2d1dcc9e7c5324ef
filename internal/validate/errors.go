package validate

import "fmt"

// Issue is the common shape of every validator violation. Index
// reports which work item, by position, the violation belongs to.
type Issue interface {
	error
	Index() int
}

// NullItem is reported when an item decodes to JSON null.
type NullItem struct{ Idx int }

func (e NullItem) Index() int  { return e.Idx }
func (e NullItem) Error() string {
	return fmt.Sprintf("item %d: item is null", e.Idx)
}

// NotAnObject is reported when an item is not a JSON object (e.g. a
// bare string, number, or array at the top level).
type NotAnObject struct{ Idx int }

func (e NotAnObject) Index() int { return e.Idx }
func (e NotAnObject) Error() string {
	return fmt.Sprintf("item %d: expected an object", e.Idx)
}

// MissingRequiredField is reported when a schema-required field is
// absent from an item.
type MissingRequiredField struct {
	Idx   int
	Field string
}

func (e MissingRequiredField) Index() int { return e.Idx }
func (e MissingRequiredField) Error() string {
	return fmt.Sprintf("item %d: missing required field %q", e.Idx, e.Field)
}

// InvalidFieldType is reported when a field's value does not match
// its declared type.
type InvalidFieldType struct {
	Idx      int
	Field    string
	Expected string
	Got      string
}

func (e InvalidFieldType) Index() int { return e.Idx }
func (e InvalidFieldType) Error() string {
	return fmt.Sprintf("item %d: field %q: expected %s, got %s", e.Idx, e.Field, e.Expected, e.Got)
}

// ConstraintViolation is reported when a field's value fails a
// declared constraint (Range, MinLength, MaxLength, OneOf, Pattern).
type ConstraintViolation struct {
	Idx        int
	Field      string
	Constraint string
	Value      interface{}
}

func (e ConstraintViolation) Index() int { return e.Idx }
func (e ConstraintViolation) Error() string {
	return fmt.Sprintf("item %d: field %q violates constraint %s (value: %v)", e.Idx, e.Field, e.Constraint, e.Value)
}

// DuplicateId is reported when two items share the same id-field
// value. FirstSeenAt is the index of the earlier occurrence.
type DuplicateId struct {
	Idx         int
	ID          string
	FirstSeenAt int
}

func (e DuplicateId) Index() int { return e.Idx }
func (e DuplicateId) Error() string {
	return fmt.Sprintf("item %d: duplicate id %q, first seen at item %d", e.Idx, e.ID, e.FirstSeenAt)
}

// InvalidId is reported when the id-field value is present but
// malformed (not a non-empty string).
type InvalidId struct {
	Idx    int
	Reason string
}

func (e InvalidId) Index() int { return e.Idx }
func (e InvalidId) Error() string {
	return fmt.Sprintf("item %d: invalid id: %s", e.Idx, e.Reason)
}
