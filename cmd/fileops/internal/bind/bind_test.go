package bind

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/fileops/pkg/config"
	"github.com/vulntor/fileops/pkg/job"
)

func newCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("on-conflict", PolicyAsk, "")
	cmd.Flags().String("format", "", "")
	cmd.Flags().Int("level", 0, "")
	cmd.Flags().Bool("subfolder", false, "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestBindConflictPolicy(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    ConflictPolicy
		wantErr bool
	}{
		{name: "default asks", want: ConflictPolicy{Ask: true}},
		{name: "explicit ask", args: []string{"--on-conflict", "ASK"}, want: ConflictPolicy{Ask: true}},
		{name: "batch policy", args: []string{"--on-conflict", "skip-all"}, want: ConflictPolicy{Decision: job.DecisionSkipAll}},
		{name: "single decision", args: []string{"--on-conflict", "overwrite-this"}, want: ConflictPolicy{Decision: job.DecisionOverwriteThis}},
		{name: "unknown", args: []string{"--on-conflict", "maybe"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BindConflictPolicy(newCmd(t, tt.args...))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUsage)
				assert.Contains(t, err.Error(), "skip-all")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitSourcesDestination(t *testing.T) {
	sources, dest, err := SplitSourcesDestination([]string{"a", "b", "/dst"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sources)
	assert.Equal(t, "/dst", dest)

	_, _, err = SplitSourcesDestination([]string{"a"})
	require.ErrorIs(t, err, ErrUsage)
}

func TestBindCompressOptions(t *testing.T) {
	opts, err := BindCompressOptions(newCmd(t, "--format", ".TAR.GZ", "--level", "9"))
	require.NoError(t, err)
	assert.Equal(t, "tar.gz", opts.Format)
	assert.Equal(t, 9, opts.Level)

	_, err = BindCompressOptions(newCmd(t, "--format", "rar"))
	require.ErrorIs(t, err, ErrUsage)

	_, err = BindCompressOptions(newCmd(t, "--level", "12"))
	require.ErrorIs(t, err, ErrUsage)
}

func TestBindDecompressOptions_FallsBackToConfig(t *testing.T) {
	opts := BindDecompressOptions(newCmd(t), config.QueueConfig{ForceSubfolder: true})
	assert.True(t, opts.ForceSubfolder)

	opts = BindDecompressOptions(newCmd(t, "--subfolder=false"), config.QueueConfig{ForceSubfolder: true})
	assert.False(t, opts.ForceSubfolder)

	opts = BindDecompressOptions(newCmd(t, "--subfolder"), config.QueueConfig{})
	assert.True(t, opts.ForceSubfolder)
}
