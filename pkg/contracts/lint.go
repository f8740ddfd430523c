package contracts

import "fmt"

// Diagnostic codes.
const (
	DiagDeprecatedActionAlias = "deprecated_action_alias"
	DiagDeprecatedLegacyField = "deprecated_legacy_field"
)

// Diagnostic is a non-fatal finding about a payload. Path is dotted and
// relative to the record, or to the decoded payload for Decode* helpers.
type Diagnostic struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at %s: %s", d.Code, d.Path, d.Message)
}

func legacyFieldDiagnostic(field, path string) Diagnostic {
	generic := field
	for _, f := range legacyFields {
		if f.legacy == field {
			generic = f.generic
		}
	}
	return Diagnostic{
		Code:    DiagDeprecatedLegacyField,
		Path:    path,
		Message: fmt.Sprintf("field %q is deprecated, use params.%s", field, generic),
	}
}

// Lint reports deprecated vocabulary in the intermediate and finalAction slots
// of r: legacy action aliases and legacy flat fields. It never rejects a
// record. Diagnostics are ordered by slot, then action before fields.
func Lint(r Record) []Diagnostic {
	var out []Diagnostic
	for _, slot := range []struct {
		name    string
		payload map[string]any
	}{
		{FieldIntermediate, r.intermediate},
		{FieldFinalAction, r.finalAction},
	} {
		if name, ok := slot.payload["action"].(string); ok {
			if a, legacy := legacyActionAliases[name]; legacy {
				out = append(out, Diagnostic{
					Code:    DiagDeprecatedActionAlias,
					Path:    slot.name + ".action",
					Message: fmt.Sprintf("action %q is deprecated, use %q", name, a),
				})
			}
		}
		for _, f := range legacyFields {
			if _, ok := slot.payload[f.legacy]; ok {
				out = append(out, legacyFieldDiagnostic(f.legacy, slot.name+"."+f.legacy))
			}
		}
	}
	return out
}
