// Copyright (c) 2024 The mwwallet developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prompt

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPromptListBoolAcceptsYesNoVariants(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"no\n", false},
		{"\n", false}, // empty input falls back to the default
	}
	for _, c := range cases {
		reader := bufio.NewReader(strings.NewReader(c.input))
		got, err := promptListBool(reader, "continue?", "no")
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}
}

func TestPromptListBoolRepeatsOnInvalidInput(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("maybe\nsure\ny\n"))
	got, err := promptListBool(reader, "continue?", "no")
	require.NoError(t, err)
	require.True(t, got)
}

func TestPromptListBoolReturnsErrorOnEOF(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader(""))
	_, err := promptListBool(reader, "continue?", "no")
	require.Error(t, err)
}
