package validate

import (
	"github.com/xeipuuv/gojsonschema"
)

// Result is the validator's pure output: every validated item that
// passed the per-item object checks, plus every accumulated issue
// across the whole pass. A Result with no Issues is a Success per
// spec §4.H; otherwise it is a Failure carrying every violation found,
// never just the first.
type Result struct {
	Items  []map[string]interface{}
	Issues []Issue
}

// OK reports whether the pass found no violations.
func (r Result) OK() bool { return len(r.Issues) == 0 }

// Validate checks items against an optional schema, never
// short-circuiting: every violation across every item is collected
// before returning. items are decoded JSON values (so a null or
// non-object item is itself reported, not rejected upstream).
func Validate(items []interface{}, schema *Schema) Result {
	idField := schema.idField()

	var compiled *gojsonschema.Schema
	if schema != nil && len(schema.Fields) > 0 {
		loader := gojsonschema.NewGoLoader(toJSONSchemaDoc(*schema))
		if s, err := gojsonschema.NewSchema(loader); err == nil {
			compiled = s
		}
	}

	var issues []Issue
	validated := make([]map[string]interface{}, 0, len(items))
	firstSeen := make(map[string]int)

	for idx, raw := range items {
		if raw == nil {
			issues = append(issues, NullItem{Idx: idx})
			continue
		}

		obj, ok := raw.(map[string]interface{})
		if !ok {
			issues = append(issues, NotAnObject{Idx: idx})
			continue
		}

		if compiled != nil {
			issues = append(issues, schemaIssues(idx, obj, compiled)...)
		}

		issues = append(issues, idIssues(idx, obj, idField, firstSeen)...)

		validated = append(validated, obj)
	}

	return Result{Items: validated, Issues: issues}
}

func schemaIssues(idx int, obj map[string]interface{}, compiled *gojsonschema.Schema) []Issue {
	result, err := compiled.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil || result == nil {
		return nil
	}

	var issues []Issue
	for _, e := range result.Errors() {
		issues = append(issues, translateSchemaError(idx, e))
	}
	return issues
}

func translateSchemaError(idx int, e gojsonschema.ResultError) Issue {
	switch e.Type() {
	case "required":
		field, _ := e.Details()["property"].(string)
		return MissingRequiredField{Idx: idx, Field: field}
	case "invalid_type":
		expected, _ := e.Details()["expected"].(string)
		got, _ := e.Details()["given"].(string)
		return InvalidFieldType{Idx: idx, Field: fieldName(e.Field()), Expected: expected, Got: got}
	default:
		return ConstraintViolation{Idx: idx, Field: fieldName(e.Field()), Constraint: e.Type(), Value: e.Value()}
	}
}

func idIssues(idx int, obj map[string]interface{}, idField string, firstSeen map[string]int) []Issue {
	idVal, present := obj[idField]
	if !present {
		return nil
	}

	idStr, ok := idVal.(string)
	if !ok || idStr == "" {
		return []Issue{InvalidId{Idx: idx, Reason: "id must be a non-empty string"}}
	}

	if first, dup := firstSeen[idStr]; dup {
		return []Issue{DuplicateId{Idx: idx, ID: idStr, FirstSeenAt: first}}
	}
	firstSeen[idStr] = idx
	return nil
}
