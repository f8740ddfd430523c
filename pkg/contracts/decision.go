package contracts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrConfidenceOutOfRange is returned when a proposal confidence is outside [0, 1].
var ErrConfidenceOutOfRange = errors.New("confidence out of range")

// ReasonUnknown fills an otherwise empty reason list.
const ReasonUnknown = "unknown"

// MismatchInfo describes what a guard or modulation layer rejected or changed.
type MismatchInfo struct {
	Flags             []string       `json:"flags"`
	ReasonCodes       []string       `json:"reason_codes"`
	ThrottleRefreshMs *int64         `json:"throttle_refresh_ms,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// AsMap renders m for the mismatch slot of a Record. Flags and reason codes
// are always lists; optional hints are nil when unset.
func (m MismatchInfo) AsMap() map[string]any {
	out := map[string]any{
		"flags":               stringsToAny(m.Flags),
		"reason_codes":        stringsToAny(m.ReasonCodes),
		"throttle_refresh_ms": nil,
		"metadata":            nil,
	}
	if m.ThrottleRefreshMs != nil {
		out["throttle_refresh_ms"] = *m.ThrottleRefreshMs
	}
	if m.Metadata != nil {
		out["metadata"] = copyMap(m.Metadata)
	}
	return out
}

// Proposal is the action a decision core proposes before guards run.
// Domain-specific values go in Params.
type Proposal struct {
	Action          Action         `json:"action"`
	Confidence      float64        `json:"confidence"`
	Reasons         []string       `json:"reasons"`
	Params          map[string]any `json:"params,omitempty"`
	RunID           string         `json:"run_id,omitempty"`
	FeaturesSummary map[string]any `json:"features_summary,omitempty"`
}

// Validate checks the action and the confidence range.
func (p Proposal) Validate() error {
	if !p.Action.Valid() {
		return fmt.Errorf("proposal: %w: %s", ErrUnknownAction, p.Action)
	}
	if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("proposal: %w: %v", ErrConfidenceOutOfRange, p.Confidence)
	}
	return nil
}

// ToParams returns a copy of the params, never nil.
func (p Proposal) ToParams() map[string]any { return orEmpty(copyMap(p.Params)) }

// AsMap renders p for the intermediate slot of a Record.
func (p Proposal) AsMap() map[string]any {
	out := map[string]any{
		"action":     p.Action.String(),
		"confidence": p.Confidence,
		"reasons":    stringsToAny(p.Reasons),
		"params":     p.ToParams(),
	}
	if p.RunID != "" {
		out["run_id"] = p.RunID
	}
	if p.FeaturesSummary != nil {
		out["features_summary"] = copyMap(p.FeaturesSummary)
	}
	return out
}

// FinalDecision is the action left after guards and modulation, possibly
// clamped or overridden.
type FinalDecision struct {
	Action     Action         `json:"action"`
	Allowed    bool           `json:"allowed"`
	Reasons    []string       `json:"reasons"`
	Mismatch   *MismatchInfo  `json:"mismatch,omitempty"`
	ThrottleMs *int64         `json:"throttle_ms,omitempty"`
	CooldownMs *int64         `json:"cooldown_ms,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// ToParams returns a copy of the params, never nil.
func (d FinalDecision) ToParams() map[string]any { return orEmpty(copyMap(d.Params)) }

// AsMap renders d for the finalAction slot of a Record.
func (d FinalDecision) AsMap() map[string]any {
	out := map[string]any{
		"action":  d.Action.String(),
		"allowed": d.Allowed,
		"reasons": stringsToAny(d.Reasons),
		"params":  d.ToParams(),
	}
	if d.Mismatch != nil {
		out["mismatch"] = d.Mismatch.AsMap()
	}
	if d.ThrottleMs != nil {
		out["throttle_ms"] = *d.ThrottleMs
	}
	if d.CooldownMs != nil {
		out["cooldown_ms"] = *d.CooldownMs
	}
	return out
}

// RecordOptions returns the record options implied by d: its mismatch info,
// when present, fills the record's mismatch slot.
func (d FinalDecision) RecordOptions() []RecordOption {
	if d.Mismatch == nil {
		return nil
	}
	return []RecordOption{WithMismatch(d.Mismatch.AsMap())}
}

// ClampConfidence clamps c into [0, 1]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return max(0, min(1, c))
}

// EnsureNonEmptyReasons returns reasons, or a single ReasonUnknown when empty.
func EnsureNonEmptyReasons(reasons []string) []string {
	if len(reasons) == 0 {
		return []string{ReasonUnknown}
	}
	return reasons
}

// LegacyParams holds the flat fields older producers emitted before params
// became a generic map.
type LegacyParams struct {
	BidQuote *float64 `json:"bid_quote,omitempty"`
	AskQuote *float64 `json:"ask_quote,omitempty"`
	SizeUSD  *float64 `json:"size_usd,omitempty"`
	PostOnly *bool    `json:"post_only,omitempty"`
}

// legacyFields maps each deprecated flat field to its generic params key, in
// the order diagnostics are reported.
var legacyFields = []struct{ legacy, generic string }{
	{"bid_quote", "bid"},
	{"ask_quote", "ask"},
	{"size_usd", "size"},
	{"post_only", "post_only"},
}

func (l LegacyParams) set() []string {
	var out []string
	if l.BidQuote != nil {
		out = append(out, "bid_quote")
	}
	if l.AskQuote != nil {
		out = append(out, "ask_quote")
	}
	if l.SizeUSD != nil {
		out = append(out, "size_usd")
	}
	if l.PostOnly != nil {
		out = append(out, "post_only")
	}
	return out
}

// NormalizeLegacyParams resolves params against the legacy flat fields. An
// explicit params map wins and is returned as a copy. Otherwise, if any of
// bid_quote, ask_quote or size_usd is set, the values move to the generic
// keys bid, ask and size, and post_only defaults to true. Every legacy field
// present yields a deprecation diagnostic.
func NormalizeLegacyParams(params map[string]any, legacy LegacyParams) (map[string]any, []Diagnostic) {
	var diags []Diagnostic
	for _, name := range legacy.set() {
		diags = append(diags, legacyFieldDiagnostic(name, name))
	}

	if params != nil {
		return copyMap(params), diags
	}
	if legacy.BidQuote == nil && legacy.AskQuote == nil && legacy.SizeUSD == nil {
		return nil, diags
	}
	out := map[string]any{"post_only": true}
	if legacy.BidQuote != nil {
		out["bid"] = *legacy.BidQuote
	}
	if legacy.AskQuote != nil {
		out["ask"] = *legacy.AskQuote
	}
	if legacy.SizeUSD != nil {
		out["size"] = *legacy.SizeUSD
	}
	if legacy.PostOnly != nil {
		out["post_only"] = *legacy.PostOnly
	}
	return out, diags
}

type proposalWire struct {
	Action          string         `json:"action"`
	Confidence      float64        `json:"confidence"`
	Reasons         []string       `json:"reasons"`
	Params          map[string]any `json:"params"`
	RunID           string         `json:"run_id"`
	FeaturesSummary map[string]any `json:"features_summary"`
	LegacyParams
}

// DecodeProposal reads a proposal from JSON, accepting legacy action aliases
// and legacy flat fields. Both are normalized and reported as diagnostics.
func DecodeProposal(data []byte) (Proposal, []Diagnostic, error) {
	var w proposalWire
	if err := decodeStrict(data, &w); err != nil {
		return Proposal{}, nil, fmt.Errorf("decode proposal: %w", err)
	}
	action, diag, err := DecodeAction(w.Action)
	if err != nil {
		return Proposal{}, nil, fmt.Errorf("decode proposal: %w", err)
	}
	var diags []Diagnostic
	if diag != nil {
		diags = append(diags, *diag)
	}
	params, legacyDiags := NormalizeLegacyParams(w.Params, w.LegacyParams)
	diags = append(diags, legacyDiags...)

	p := Proposal{
		Action:          action,
		Confidence:      w.Confidence,
		Reasons:         nonNil(w.Reasons),
		Params:          params,
		RunID:           w.RunID,
		FeaturesSummary: w.FeaturesSummary,
	}
	if err := p.Validate(); err != nil {
		return Proposal{}, diags, err
	}
	return p, diags, nil
}

type finalDecisionWire struct {
	Action     string         `json:"action"`
	Allowed    *bool          `json:"allowed"`
	Reasons    []string       `json:"reasons"`
	Mismatch   *MismatchInfo  `json:"mismatch"`
	ThrottleMs *int64         `json:"throttle_ms"`
	CooldownMs *int64         `json:"cooldown_ms"`
	Params     map[string]any `json:"params"`
	LegacyParams
}

// DecodeFinalDecision reads a final decision from JSON with the same legacy
// handling as DecodeProposal. A missing allowed field means allowed.
func DecodeFinalDecision(data []byte) (FinalDecision, []Diagnostic, error) {
	var w finalDecisionWire
	if err := decodeStrict(data, &w); err != nil {
		return FinalDecision{}, nil, fmt.Errorf("decode final decision: %w", err)
	}
	action, diag, err := DecodeAction(w.Action)
	if err != nil {
		return FinalDecision{}, nil, fmt.Errorf("decode final decision: %w", err)
	}
	var diags []Diagnostic
	if diag != nil {
		diags = append(diags, *diag)
	}
	params, legacyDiags := NormalizeLegacyParams(w.Params, w.LegacyParams)
	diags = append(diags, legacyDiags...)

	allowed := true
	if w.Allowed != nil {
		allowed = *w.Allowed
	}
	mismatch := w.Mismatch
	if mismatch != nil {
		mismatch.Flags = nonNil(mismatch.Flags)
		mismatch.ReasonCodes = nonNil(mismatch.ReasonCodes)
	}
	return FinalDecision{
		Action:     action,
		Allowed:    allowed,
		Reasons:    nonNil(w.Reasons),
		Mismatch:   mismatch,
		ThrottleMs: w.ThrottleMs,
		CooldownMs: w.CooldownMs,
		Params:     params,
	}, diags, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

func stringsToAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
