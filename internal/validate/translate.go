package validate

import "strings"

// toJSONSchemaDoc lowers a Schema into a draft-7 JSON Schema document
// that gojsonschema can compile. Range/MinLength/MaxLength/OneOf/
// Pattern constraints become the matching draft-7 keywords so that
// gojsonschema's own accumulation does the constraint checking; the
// results are re-tagged into the validator's error enum afterward.
func toJSONSchemaDoc(s Schema) map[string]interface{} {
	properties := make(map[string]interface{}, len(s.Fields))
	var required []string

	for name, spec := range s.Fields {
		prop := map[string]interface{}{}
		if t := jsonSchemaType(spec.Type); t != "" {
			prop["type"] = t
		}
		for _, c := range spec.Constraints {
			applyConstraint(prop, c)
		}
		properties[name] = prop

		if spec.Required {
			required = append(required, name)
		}
	}

	doc := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func jsonSchemaType(t FieldType) string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBool:
		return "boolean"
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	default: // TypeAny, or unset
		return ""
	}
}

func applyConstraint(prop map[string]interface{}, c Constraint) {
	if c.Range != nil {
		if c.Range.Min != nil {
			prop["minimum"] = *c.Range.Min
		}
		if c.Range.Max != nil {
			prop["maximum"] = *c.Range.Max
		}
	}
	if c.MinLength != nil {
		prop["minLength"] = *c.MinLength
	}
	if c.MaxLength != nil {
		prop["maxLength"] = *c.MaxLength
	}
	if len(c.OneOf) > 0 {
		prop["enum"] = c.OneOf
	}
	if c.Pattern != "" {
		prop["pattern"] = c.Pattern
	}
}

// fieldName strips gojsonschema's "(root)." prefix from a field path,
// leaving a bare top-level field name (work items are flat by schema
// construction — nested property paths never occur here).
func fieldName(path string) string {
	return strings.TrimPrefix(path, "(root).")
}
