// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, ModeTable, false, false)
	require.NotNil(t, f)
	require.False(t, f.IsJSON())
	require.False(t, f.IsQuiet())
	require.False(t, f.ColorEnabled())
	require.Equal(t, &stderr, f.Stderr())

	f = New(&stdout, &stderr, ModeJSON, true, true)
	require.True(t, f.IsJSON())
	require.True(t, f.IsQuiet())
	require.True(t, f.ColorEnabled())
}

func TestPrintWarning(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, New(&stdout, &stderr, ModeJSON, false, false).PrintWarning("engine is old"))
	require.Empty(t, stdout.String())
	require.Equal(t, "⚠ engine is old\n", stderr.String())

	stderr.Reset()
	require.NoError(t, New(&stdout, &stderr, ModeTable, true, false).PrintWarning("engine is old"))
	require.Empty(t, stderr.String())
}

func TestPrintJSON(t *testing.T) {
	tests := []struct {
		name     string
		data     any
		expected string
	}{
		{
			name:     "simple object",
			data:     map[string]string{"kind": "copy", "job_id": "j-1"},
			expected: "{\n  \"job_id\": \"j-1\",\n  \"kind\": \"copy\"\n}\n",
		},
		{
			name:     "nil",
			data:     nil,
			expected: "null\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			f := New(&stdout, &stderr, ModeJSON, false, false)
			require.NoError(t, f.PrintJSON(tt.data))
			require.Equal(t, tt.expected, stdout.String())
		})
	}
}

func TestPrintTable(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, ModeTable, false, false)

	require.NoError(t, f.PrintTable([]string{"KEY", "VALUE"}, [][]string{{"engine.url", "http://h"}}))
	require.Contains(t, stdout.String(), "KEY")
	require.Contains(t, stdout.String(), "engine.url  http://h")
}

func TestPrintTable_JSONMode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, ModeJSON, false, false)

	require.NoError(t, f.PrintTable([]string{"key", "value"}, [][]string{{"a", "1"}, {"b"}}))

	var items []map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &items))
	require.Equal(t, []map[string]string{{"key": "a", "value": "1"}, {"key": "b"}}, items)
}

func TestPrintSummary(t *testing.T) {
	t.Run("table goes to stdout", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, New(&stdout, &stderr, ModeTable, false, false).PrintSummary("done"))
		require.Equal(t, "done\n", stdout.String())
	})
	t.Run("json goes to stderr", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, New(&stdout, &stderr, ModeJSON, false, false).PrintSummary("done"))
		require.Empty(t, stdout.String())
		require.Equal(t, "done\n", stderr.String())
	})
	t.Run("quiet", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		require.NoError(t, New(&stdout, &stderr, ModeTable, true, false).PrintSummary("done"))
		require.Empty(t, stdout.String())
	})
}

func TestModes(t *testing.T) {
	require.NoError(t, ValidateMode("json"))
	require.NoError(t, ValidateMode("table"))
	require.Error(t, ValidateMode("yaml"))

	require.Equal(t, ModeJSON, ParseMode("JSON"))
	require.Equal(t, ModeTable, ParseMode("whatever"))
}

func TestBytes(t *testing.T) {
	require.Equal(t, "0 B", Bytes(0))
	require.Equal(t, "1023 B", Bytes(1023))
	require.Equal(t, "1.5 KiB", Bytes(1536))
	require.Equal(t, "2.0 MiB", Bytes(2<<20))
	require.Equal(t, "1.0 GiB", Bytes(1<<30))
}
