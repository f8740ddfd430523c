package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValidate_RegisteredKeyPassesStrict(t *testing.T) {
	issues := Validate(map[string]any{"harness.fail_closed": true}, ModeTrace, "harness")
	assert.Empty(t, issues)
}

func TestValidate_UnregisteredKeyFailsStrict(t *testing.T) {
	issues := Validate(map[string]any{"harness.future_key": true}, ModeTrace, "harness")
	require.Len(t, issues, 1)
	assert.Equal(t, Issue{Code: CodeUnregisteredKey, Key: "harness.future_key"}, issues[0])
	assert.Equal(t, "unregistered_key:harness.future_key", issues[0].String())
}

func TestValidate_FormatOnlyAllowsUnregistered(t *testing.T) {
	assert.Empty(t, Validate(map[string]any{"harness.some_future_key": true}, ModeTrace))
	// strictness is per namespace
	assert.Empty(t, Validate(map[string]any{"ops.some_future_key": true}, ModeTrace, "harness"))
}

func TestValidate_InvalidFormat(t *testing.T) {
	issues := Validate(map[string]any{"InvalidKey": 1}, ModeBoth)
	require.Len(t, issues, 1)
	assert.Equal(t, "invalid_key_format:InvalidKey", issues[0].String())
	assert.True(t, HasCode(issues, CodeInvalidKeyFormat))
}

func TestValidate_GrammarFailureSuppressesRegistryCheck(t *testing.T) {
	issues := Validate(map[string]any{"harness.Bad-Key": 1}, ModeTrace, "harness")
	require.Len(t, issues, 1)
	assert.Equal(t, CodeInvalidKeyFormat, issues[0].Code)
	assert.False(t, HasCode(issues, CodeUnregisteredKey))
}

func TestValidate_Modes(t *testing.T) {
	ctx := map[string]any{
		"now_ms":              1,
		"harness.fail_closed": true,
	}

	assert.Equal(t, []string{"invalid_key_format:harness.fail_closed"}, Strings(Validate(ctx, ModeContext)))
	assert.Equal(t, []string{"invalid_key_format:now_ms"}, Strings(Validate(ctx, ModeTrace)))
	assert.Empty(t, Validate(ctx, ModeBoth, "harness"))
}

func TestValidate_AbsentContext(t *testing.T) {
	assert.Empty(t, Validate(nil, ModeTrace))
	assert.Empty(t, Validate(map[string]any(nil), ModeTrace))
	assert.Empty(t, Validate(map[string]int(nil), ModeTrace))
	assert.Empty(t, Validate((*yaml.Node)(nil), ModeTrace))
}

func TestValidate_NotMapping(t *testing.T) {
	for _, v := range []any{"harness.fail_closed", 42, []string{"a"}, struct{}{}} {
		issues := Validate(v, ModeBoth)
		assert.Equal(t, []Issue{{Code: CodeNotMapping}}, issues)
		assert.Equal(t, "context_not_mapping", issues[0].String())
	}
}

func TestValidate_NonStringKeysDoNotShortCircuit(t *testing.T) {
	ctx := map[any]any{
		1:                    "one",
		"now_ms":             2,
		"BadKey":             3,
		true:                 4,
		"harness.future_key": 5,
	}

	issues := Validate(ctx, ModeBoth, "harness")
	assert.Equal(t, []string{
		"key_not_str",
		"invalid_key_format:BadKey",
		"unregistered_key:harness.future_key",
		"key_not_str",
	}, Strings(issues), "keys are visited in sorted order: 1, BadKey, harness.future_key, now_ms, true")
}

func TestValidate_NamedStringKeys(t *testing.T) {
	type key string
	issues := Validate(map[key]int{"now_ms": 1, "Bad": 2}, ModeContext)
	assert.Equal(t, []string{"invalid_key_format:Bad"}, Strings(issues))
}

func TestValidate_SortedOrderForStringMaps(t *testing.T) {
	issues := Validate(map[string]any{"zz.Bad": 1, "AA": 2, "mm.X": 3}, ModeTrace)
	assert.Equal(t, []string{
		"invalid_key_format:AA",
		"invalid_key_format:mm.X",
		"invalid_key_format:zz.Bad",
	}, Strings(issues))
}

func TestValidate_UnknownMode(t *testing.T) {
	issues := Validate(map[string]any{"now_ms": 1}, Mode("legacy"))
	assert.Equal(t, []Issue{{Code: CodeUnknownMode, Key: "legacy"}}, issues)
}

func TestValidate_AbsentPassesWhateverTheMode(t *testing.T) {
	var null yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`~`), &null))

	for _, ctx := range []any{nil, map[string]any(nil), map[int]string(nil), (*yaml.Node)(nil), &null} {
		assert.Empty(t, Validate(ctx, Mode("bogus")), "%#v", ctx)
	}
	assert.Equal(t, []Issue{{Code: CodeUnknownMode, Key: "bogus"}}, Validate([]string{"x"}, Mode("bogus")))
}

func TestValidate_CustomRegistry(t *testing.T) {
	reg, err := New(Entry{Key: "ops.deny_actions", Owner: "ops-health-core", IntroducedIn: "0.2.0", Description: "deny list"})
	require.NoError(t, err)

	ctx := map[string]any{"ops.deny_actions": []string{"STOP"}, "harness.fail_closed": true}
	issues := reg.Validate(ctx, ModeTrace, "ops", "harness")
	assert.Equal(t, []string{"unregistered_key:harness.fail_closed"}, Strings(issues))
}

func TestValidate_YAMLDocumentOrder(t *testing.T) {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`
zeta.Bad: 1
now_ms: 2
7: seven
harness.future_key: true
Alpha: 3
`), &doc))

	issues := Validate(&doc, ModeBoth, "harness")
	assert.Equal(t, []string{
		"invalid_key_format:zeta.Bad",
		"key_not_str",
		"unregistered_key:harness.future_key",
		"invalid_key_format:Alpha",
	}, Strings(issues))
}

func TestValidate_YAMLAliasAndMergeKeys(t *testing.T) {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`
defaults: &defaults
  harness.fail_closed: true
  Bad.Key: 1
name: &name now_ms
ctx:
  <<: *defaults
  *name : 5
  harness.fail_closed: false
  harness.future_key: 1
`), &doc))
	ctx := doc.Content[0].Content[5]

	issues := Validate(ctx, ModeBoth, "harness")
	assert.Equal(t, []string{
		"invalid_key_format:Bad.Key",
		"unregistered_key:harness.future_key",
	}, Strings(issues))

	require.NoError(t, yaml.Unmarshal([]byte(`
a: &a {ops.one: 1}
b: &b {ops.two: 2}
ctx:
  <<: [*a, *b]
  ops.three: 3
`), &doc))
	issues = Validate(doc.Content[0].Content[5], ModeTrace, "ops")
	assert.Equal(t, []string{
		"unregistered_key:ops.one",
		"unregistered_key:ops.two",
		"unregistered_key:ops.three",
	}, Strings(issues))
}

func TestValidate_YAMLNonMapping(t *testing.T) {
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`[a, b]`), &doc))
	assert.Equal(t, []Issue{{Code: CodeNotMapping}}, Validate(&doc, ModeBoth))

	var null yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`~`), &null))
	assert.Empty(t, Validate(&null, ModeBoth))
}

func TestIssueString(t *testing.T) {
	assert.Equal(t, "key_not_str", Issue{Code: CodeKeyNotString}.String())
	assert.Equal(t, "unknown_mode:x", Issue{Code: CodeUnknownMode, Key: "x"}.String())
	assert.Empty(t, Strings(nil))
}
