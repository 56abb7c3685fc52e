package version

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// TestVersionStrings ensures Short and Full return non-empty consistent information.
func TestVersionStrings(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, Short())
	require.Contains(t, Full(), Short())
}

// TestFull_LayoutStable pins the output layout the update tooling parses
// from `version` output.
func TestFull_LayoutStable(t *testing.T) {
	t.Parallel()

	full := Full()
	require.True(t, strings.HasPrefix(full, "version: "+Version))
	require.Contains(t, full, ", commit: "+Commit)
	require.Contains(t, full, ", built at: "+BuildTime)
}

func TestAttachCobraVersionCommand(t *testing.T) {
	t.Parallel()

	root := &cobra.Command{Use: "sentry-test"}
	AttachCobraVersionCommand(root)

	var out strings.Builder

	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	require.Equal(t, Full()+"\n", out.String())
}
