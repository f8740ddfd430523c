package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/decision-schema/pkg/registry"
)

func writeDocs(t *testing.T, index, keyRegistry string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	if index != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, parameterIndexDoc), []byte(index), 0o600))
	}
	if keyRegistry != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, traceKeyRegistryDoc), []byte(keyRegistry), 0o600))
	}
	return root
}

func TestParamCheck_RepositoryDocs(t *testing.T) {
	code, stdout, _ := run(t, "paramcheck", "--root", filepath.Join("..", ".."))
	assert.Equal(t, 0, code, stdout)
	assert.Contains(t, stdout, "parameter docs in sync")
}

func TestCheckParameterDocs(t *testing.T) {
	const goodIndex = "Trace Record fields and external keys. See [registry](TRACE_KEY_REGISTRY.md).\n"

	tests := []struct {
		name     string
		index    string
		registry string
		want     []string
	}{
		{
			name:     "in sync",
			index:    goodIndex,
			registry: "`harness.fail_closed`\n",
			want:     []string{},
		},
		{
			name:  "missing index",
			index: "",
			want:  []string{"docs/PARAMETER_INDEX.md missing"},
		},
		{
			name:     "missing phrases",
			index:    "see pkg/registry\n",
			registry: "harness.fail_closed",
			want: []string{
				`docs/PARAMETER_INDEX.md must mention "Trace Record"`,
				`docs/PARAMETER_INDEX.md must mention "external"`,
			},
		},
		{
			name:  "undocumented key and broken link",
			index: "Trace Record, external, [keys](TRACE_KEY_REGISTRY.md)\n",
			want: []string{
				`registered key "harness.fail_closed" not documented in docs/PARAMETER_INDEX.md or docs/TRACE_KEY_REGISTRY.md`,
				`docs/PARAMETER_INDEX.md:1: broken link "TRACE_KEY_REGISTRY.md"`,
			},
		},
		{
			name:     "no registry reference",
			index:    "Trace Record external harness.fail_closed\n",
			registry: "",
			want:     []string{"docs/PARAMETER_INDEX.md must reference TRACE_KEY_REGISTRY or pkg/registry"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := writeDocs(t, tt.index, tt.registry)
			issues, err := checkParameterDocs(root, registry.Default())
			require.NoError(t, err)
			assert.Equal(t, tt.want, issues)
		})
	}
}

func TestParamCheckCmd_Drift(t *testing.T) {
	root := writeDocs(t, "nothing useful\n", "")
	code, stdout, _ := run(t, "paramcheck", "--root", root)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "documentation issue(s)")

	code, stdout, _ = run(t, "paramcheck", "--json", "--root", root)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, `"passed": false`)
}
