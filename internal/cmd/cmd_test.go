package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/mplp/internal/concerns"
	"github.com/Iron-Ham/mplp/internal/workflow"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("MPLP_RESOURCES_AUTO_DETECT", "false")
	t.Setenv("MPLP_LOGGING_ENABLED", "false")

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "mplp", rootCmd.Use)

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "concerns", "demo", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestConcernsCommand(t *testing.T) {
	t.Cleanup(func() { concernsJSON = false })

	out, err := executeCommand(t, rootCmd, "concerns")
	require.NoError(t, err)
	for _, name := range concerns.Concerns() {
		assert.Contains(t, out, name)
	}

	out, err = executeCommand(t, rootCmd, "concerns", concerns.ConcernSecurity, "--json")
	require.NoError(t, err)
	var got []concerns.Mapping
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, concerns.ConcernSecurity, got[0].Concern)

	_, err = executeCommand(t, rootCmd, "concerns", "billing")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, rootCmd, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mplp dev")
	assert.Contains(t, out, "protocol v1.0.0")
}

func TestDemoCommand(t *testing.T) {
	t.Cleanup(func() { demoJSON = false })

	out, err := executeCommand(t, rootCmd, "demo", "--json", "--id", "demo-test", "--priority", "high")
	require.NoError(t, err)

	var report demoReport
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Equal(t, "demo-test", report.Executed.Workflow.ID)
	assert.Equal(t, workflow.StatusCompleted, report.Executed.Workflow.Status)
	assert.True(t, report.Stopped)
	assert.Equal(t, 1, report.Overview.TotalWorkflows)
}
