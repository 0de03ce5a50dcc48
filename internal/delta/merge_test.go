package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tree(t *testing.T, js string) map[string]any {
	t.Helper()
	m, err := decodeObject([]byte(js))
	require.NoError(t, err)
	return m
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		patch string
		want  string
	}{
		{"null deletes", `{"a":1,"b":2}`, `{"a":null}`, `{"b":2}`},
		{"nested merge", `{"a":{"y":2}}`, `{"a":{"x":1}}`, `{"a":{"x":1,"y":2}}`},
		{"creates missing object", `{}`, `{"a":{"x":1}}`, `{"a":{"x":1}}`},
		{"scalar replaced by object", `{"a":5}`, `{"a":{"x":1}}`, `{"a":{"x":1}}`},
		{"object replaced by scalar", `{"a":{"x":1}}`, `{"a":"flat"}`, `{"a":"flat"}`},
		{"arrays replace", `{"a":[1,2,3]}`, `{"a":[4]}`, `{"a":[4]}`},
		{"nested null deletes", `{"a":{"x":1,"y":2}}`, `{"a":{"x":null}}`, `{"a":{"y":2}}`},
		{"deleting missing key", `{"a":1}`, `{"z":null}`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tree(t, tt.base), tree(t, tt.patch))
			assert.Equal(t, tree(t, tt.want), got)
		})
	}
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := tree(t, `{"equities":{"AAPL":{"bid":1,"ask":2}},"orders":{"o1":{"qty":5}}}`)
	before := tree(t, `{"equities":{"AAPL":{"bid":1,"ask":2}},"orders":{"o1":{"qty":5}}}`)

	out := Merge(base, tree(t, `{"equities":{"AAPL":{"bid":3}},"orders":{"o1":null}}`))

	assert.Equal(t, before, base)
	assert.Equal(t, tree(t, `{"equities":{"AAPL":{"bid":3,"ask":2}},"orders":{}}`), out)
}

func TestMergeSharesUntouchedSubtrees(t *testing.T) {
	base := tree(t, `{"portfolio":{"cash":100},"orders":{"o1":{"qty":5}}}`)
	out := Merge(base, tree(t, `{"portfolio":{"cash":90}}`))

	orig := base["orders"].(map[string]any)
	shared := out["orders"].(map[string]any)
	shared["marker"] = true
	assert.Contains(t, orig, "marker", "untouched subtree should be shared, not copied")
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(tree(t, `{"a":[1,{"b":null}]}`), tree(t, `{"a":[1,{"b":null}]}`)))
	assert.False(t, Equal(tree(t, `{"a":[1]}`), tree(t, `{"a":[1,2]}`)))
	assert.False(t, Equal(tree(t, `{"a":1}`), tree(t, `{"a":"1"}`)))
	assert.False(t, Equal(tree(t, `{"a":{}}`), tree(t, `{"a":[]}`)))
}
