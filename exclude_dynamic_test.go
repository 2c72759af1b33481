package tkdb

import (
	"github.com/stretchr/testify/require"
	"testing"
)

func TestAllowedDynamic_Exclude(t *testing.T) {
	ad := AllowedDynamic{
		"foo": nil,
		"bar": func(column string, row Row) bool {
			return true
		},
	}
	row := Row{}
	require.False(t, ad.Exclude("foo", row))
	require.True(t, ad.Exclude("bar", row))
	require.True(t, ad.Exclude("baz", row))
}

func TestDynamicExclusions_Exclude(t *testing.T) {
	xs := DynamicExclusions{
		ExcludeDynamic{"del"},
		ConditionalExclude(func(column string, row Row) bool {
			return row[column] == nil
		}),
		nil,
	}
	row := Row{"del": 0, "empty": nil, "name": "x"}
	require.True(t, xs.Exclude("del", row))
	require.True(t, xs.Exclude("empty", row))
	require.False(t, xs.Exclude("name", row))
	require.False(t, DynamicExclusions{}.Exclude("name", row))
}
