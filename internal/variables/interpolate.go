package variables

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// exprPattern matches ${EXPR}; barePattern matches bare $NAME references
// that aren't already part of a ${...} match. Mirrors the extraction
// regex shape the teacher's text/template engine uses for {{.Path}}, here
// retargeted at the spec's ${EXPR} / $NAME surface.
var (
	exprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
	barePattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_.]*)`)
)

// Mode controls behavior when a referenced path cannot be resolved.
type Mode int

const (
	// Strict fails the whole render with a MissingPathError.
	Strict Mode = iota
	// Lenient renders the literal source text for unresolved references
	// and reports the failure via the returned Diagnostics.
	Lenient
)

// MissingPathError is returned by Render in Strict mode when a referenced
// path cannot be resolved. It carries the offending template and
// expression plus the set of paths that *were* available, matching the
// spec's requirement that a strict failure names all three.
type MissingPathError struct {
	Template  string
	Expr      string
	Available []string
}

func (e *MissingPathError) Error() string {
	return fmt.Sprintf("unresolved variable %q in template %q (available: %s)",
		e.Expr, e.Template, strings.Join(e.Available, ", "))
}

// Diagnostic records one lenient-mode resolution failure for logging.
type Diagnostic struct {
	Expr string
	Text string // the literal text rendered in place of the failed expression
}

// MaskRule configures sensitive-value masking in diagnostic output.
type MaskRule struct {
	NamePattern  *regexp.Regexp // matches against the variable's leaf name
	ValuePattern *regexp.Regexp // matches against the rendered value
}

const maskedText = "***MASKED***"

// Interpolator renders ${EXPR} / $NAME templates against a merged context.
type Interpolator struct {
	mode  Mode
	masks []MaskRule
}

// NewInterpolator constructs an Interpolator. Pass masks built from
// configured name/value patterns (e.g. "*KEY*", "*SECRET*", "*TOKEN*").
func NewInterpolator(mode Mode, masks ...MaskRule) *Interpolator {
	return &Interpolator{mode: mode, masks: masks}
}

// Render substitutes every ${EXPR} and bare $NAME occurrence in template
// against ctx. Arrays and objects render as canonical JSON; strings render
// unquoted; numbers and booleans render lexically — this is the rule the
// spec requires so that downstream stages can parse a rendered array or
// object argument back into structured data.
func (in *Interpolator) Render(template string, ctx *Store) (string, []Diagnostic, error) {
	var diags []Diagnostic
	var renderErr error

	replace := func(expr string) string {
		val, ok := ctx.Resolve(strings.TrimSpace(expr))
		if !ok {
			if in.mode == Strict {
				renderErr = &MissingPathError{
					Template:  template,
					Expr:      expr,
					Available: ctx.AvailablePaths(),
				}
				return ""
			}
			diags = append(diags, Diagnostic{Expr: expr, Text: "${" + expr + "}"})
			return "${" + expr + "}"
		}
		rendered, err := renderValue(val)
		if err != nil {
			if in.mode == Strict {
				renderErr = fmt.Errorf("rendering %q: %w", expr, err)
				return ""
			}
			diags = append(diags, Diagnostic{Expr: expr, Text: "${" + expr + "}"})
			return "${" + expr + "}"
		}
		return in.maskIfSensitive(expr, rendered)
	}

	out := exprPattern.ReplaceAllStringFunc(template, func(m string) string {
		if renderErr != nil {
			return m
		}
		inner := exprPattern.FindStringSubmatch(m)[1]
		return replace(inner)
	})
	if renderErr != nil {
		return "", diags, renderErr
	}

	out = barePattern.ReplaceAllStringFunc(out, func(m string) string {
		if renderErr != nil {
			return m
		}
		name := barePattern.FindStringSubmatch(m)[1]
		return replace(name)
	})
	if renderErr != nil {
		return "", diags, renderErr
	}

	return out, diags, nil
}

// renderValue implements the rendering rule: strings unquoted, numbers and
// bools lexical, arrays/objects as canonical JSON.
func renderValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case float64, int, int64:
		return fmt.Sprintf("%v", t), nil
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func (in *Interpolator) maskIfSensitive(exprOrName, rendered string) string {
	leaf := exprOrName
	if idx := strings.LastIndexAny(leaf, ".["); idx >= 0 {
		leaf = leaf[idx+1:]
	}
	for _, rule := range in.masks {
		if rule.NamePattern != nil && rule.NamePattern.MatchString(leaf) {
			return maskedText
		}
		if rule.ValuePattern != nil && rule.ValuePattern.MatchString(rendered) {
			return maskedText
		}
	}
	return rendered
}

// IsIdempotent reports whether re-rendering `rendered` against ctx produces
// the same string — the round-trip law the spec requires for fully
// resolved strings (no remaining ${...}/$NAME tokens).
func (in *Interpolator) IsIdempotent(rendered string, ctx *Store) bool {
	again, _, err := in.Render(rendered, ctx)
	return err == nil && again == rendered
}
