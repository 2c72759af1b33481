package tkdb

import (
	"fmt"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestFragment_Sanitize(t *testing.T) {
	testCases := []struct {
		fragment Fragment
		expect   string
	}{
		{"a.name", "a.name"},
		{"a.id = 1; DROP TABLE x", "a.id = 1  DROP TABLE x"},
		{"a.id = 1 -- comment", "a.id = 1   comment"},
		{"a.id = 1 /* comment */", "a.id = 1   comment */"},
		{";;", "  "},
		{"a.name = 'x-y'", "a.name = 'x-y'"},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprintf("[%d]", i+1), func(t *testing.T) {
			require.Equal(t, tc.expect, tc.fragment.Sanitize())
		})
	}
}
