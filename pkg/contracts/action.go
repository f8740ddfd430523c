package contracts

import (
	"errors"
	"fmt"
	"maps"
)

// ErrUnknownAction is returned for action names that are neither canonical
// nor a known legacy alias.
var ErrUnknownAction = errors.New("unknown action")

// Action is the domain-agnostic outcome of a decision step.
type Action uint8

const (
	ActionUnspecified Action = iota
	ActionHold               // keep current state
	ActionAct                // perform the proposed action
	ActionExit               // leave the current position or session
	ActionCancel             // withdraw pending actions
	ActionStop               // halt the run
)

var actionNames = [...]string{
	ActionUnspecified: "",
	ActionHold:        "HOLD",
	ActionAct:         "ACT",
	ActionExit:        "EXIT",
	ActionCancel:      "CANCEL",
	ActionStop:        "STOP",
}

var actionsByName = map[string]Action{
	"HOLD":   ActionHold,
	"ACT":    ActionAct,
	"EXIT":   ActionExit,
	"CANCEL": ActionCancel,
	"STOP":   ActionStop,
}

// Older producers emitted trading-flavoured names. They are accepted only at
// decode boundaries and always mapped to the canonical action.
var legacyActionAliases = map[string]Action{
	"QUOTE":      ActionAct,
	"FLATTEN":    ActionExit,
	"CANCEL_ALL": ActionCancel,
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// Valid reports whether a is one of the canonical actions.
func (a Action) Valid() bool {
	return a > ActionUnspecified && int(a) < len(actionNames)
}

// Actions lists the canonical actions in declaration order.
func Actions() []Action {
	return []Action{ActionHold, ActionAct, ActionExit, ActionCancel, ActionStop}
}

// ParseAction accepts canonical action names only.
func ParseAction(s string) (Action, error) {
	if a, ok := actionsByName[s]; ok {
		return a, nil
	}
	return ActionUnspecified, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// LegacyActionAliases returns a copy of the legacy name to action table.
func LegacyActionAliases() map[string]Action {
	return maps.Clone(legacyActionAliases)
}

// DecodeAction resolves s at a deserialization boundary. Canonical names map
// directly; legacy aliases map to their canonical action and produce a
// deprecation diagnostic.
func DecodeAction(s string) (Action, *Diagnostic, error) {
	if a, ok := actionsByName[s]; ok {
		return a, nil, nil
	}
	if a, ok := legacyActionAliases[s]; ok {
		return a, &Diagnostic{
			Code:    DiagDeprecatedActionAlias,
			Path:    "action",
			Message: fmt.Sprintf("action %q is deprecated, use %q", s, a),
		}, nil
	}
	return ActionUnspecified, nil, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, a)
	}
	return []byte(a.String()), nil
}

// UnmarshalText accepts canonical names only. Use DecodeProposal or
// DecodeFinalDecision to read payloads that may carry legacy aliases.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
