package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Message
	}{
		{
			name: "start with totalBytes",
			in:   `{"type":"start","totalBytes":2048,"totalItems":3}`,
			want: Start{TotalBytes: 2048, TotalItems: 3},
		},
		{
			name: "start falls back to totalSize",
			in:   `{"type":"start","totalSize":"512"}`,
			want: Start{TotalBytes: 512},
		},
		{
			name: "progress",
			in: `{"type":"progress","processed":100,"total":400,"currentFile":"a.txt",
				"currentFileBytesProcessed":10,"currentFileTotalSize":50,"instantaneousSpeed":12.5,"processedFiles":1}`,
			want: Progress{
				Processed: 100, Total: 400, ProcessedItems: 1, CurrentFile: "a.txt",
				CurrentFileBytesProcessed: 10, CurrentFileTotalSize: 50, InstantaneousSpeed: 12.5,
			},
		},
		{
			name: "overwrite prompt",
			in:   `{"type":"overwrite_prompt","file":"b/","itemType":"folder","promptId":"p-1"}`,
			want: OverwritePrompt{File: "b/", ItemType: "folder", PromptID: "p-1"},
		},
		{
			name: "error",
			in:   `{"type":"error","message":"disk full"}`,
			want: Error{Message: "disk full"},
		},
		{
			name: "cancelled",
			in:   `{"type":"cancelled"}`,
			want: Cancelled{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_CompleteKeepsPayload(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"complete","archivePath":"/tmp/x.zip","entries":4}`))
	require.NoError(t, err)

	complete, ok := msg.(Complete)
	require.True(t, ok)
	assert.True(t, complete.Terminal())
	assert.Equal(t, "/tmp/x.zip", complete.Payload["archivePath"])
	assert.NotContains(t, complete.Payload, "type")
}

func TestDecode_Unknown(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"heartbeat"}`))
	require.NoError(t, err)
	assert.Equal(t, "heartbeat", msg.Type())
	assert.False(t, msg.Terminal())
}

func TestDecode_Malformed(t *testing.T) {
	for _, in := range []string{`not json`, `{"message":"no type"}`, `[]`} {
		_, err := Decode([]byte(in))
		assert.ErrorIs(t, err, ErrMalformedFrame, in)
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(NewOverwriteResponse("p-7", "overwrite-this", "skip-all"))
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]string{
		"type":           "overwrite_response",
		"decision":       "overwrite-this",
		"promptId":       "p-7",
		"contentsPolicy": "skip-all",
	}, got)

	data, err = Encode(OverwriteResponse{Decision: "skip-this"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"overwrite_response","decision":"skip-this"}`, string(data))
}
