package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersAllCommands(t *testing.T) {
	root := newRootCmd()

	want := []string{
		"status",
		"list-policies",
		"show-policy",
		"list-quarantine",
		"restore",
		"delete",
		"cleanup",
		"watch",
		"vacuum",
		"verify",
		"backup",
		"version",
	}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, cmd.Name())
	}
}

func TestListPoliciesCmd_RunsAgainstEmptyDatabase(t *testing.T) {
	dir := t.TempDir()

	root := newRootCmd()
	root.SetArgs([]string{
		"list-policies",
		"--db", filepath.Join(dir, "tg.db"),
		"--quarantine-dir", filepath.Join(dir, "quarantine"),
	})

	require.NoError(t, root.Execute())
}

func TestListQuarantineCmd_RunsAgainstEmptyDatabase(t *testing.T) {
	dir := t.TempDir()

	root := newRootCmd()
	root.SetArgs([]string{
		"list-quarantine",
		"--db", filepath.Join(dir, "tg.db"),
		"--quarantine-dir", filepath.Join(dir, "quarantine"),
	})

	require.NoError(t, root.Execute())
}
