package keys

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault_RunKeyAssignments(t *testing.T) {
	k := Default()
	require.Equal(t, []string{"r"}, k.Run.Keys(), "Run should be bound to r")
	require.Equal(t, []string{"a"}, k.RunVisible.Keys(), "RunVisible should be bound to a")
	require.Equal(t, []string{"s"}, k.Stop.Keys(), "Stop should be bound to s")
}

func TestDefault_WatchKeysAreCaseDistinct(t *testing.T) {
	k := Default()
	require.Equal(t, []string{"w"}, k.WatchItem.Keys(), "WatchItem should be bound to lowercase w")
	require.Equal(t, []string{"W"}, k.WatchAll.Keys(), "WatchAll should be bound to uppercase W")
}

func TestDefault_AllBindingsHaveHelp(t *testing.T) {
	k := Default()
	for _, group := range k.FullHelp() {
		for _, b := range group {
			help := b.Help()
			require.NotEmpty(t, help.Key, "binding %v should have help key", b.Keys())
			require.NotEmpty(t, help.Desc, "binding %v should have help desc", b.Keys())
		}
	}
}

func TestDefault_ShortHelpIsSubsetOfFullHelp(t *testing.T) {
	k := Default()
	all := map[string]bool{}
	for _, group := range k.FullHelp() {
		for _, b := range group {
			for _, kk := range b.Keys() {
				all[kk] = true
			}
		}
	}
	for _, b := range k.ShortHelp() {
		for _, kk := range b.Keys() {
			require.True(t, all[kk], "short help key %q should appear in full help", kk)
		}
	}
}

func TestDefault_NoDuplicateKeys(t *testing.T) {
	k := Default()
	seen := map[string][]string{}
	for _, group := range k.FullHelp() {
		for _, b := range group {
			for _, kk := range b.Keys() {
				seen[kk] = append(seen[kk], b.Help().Desc)
			}
		}
	}
	for kk, descs := range seen {
		require.Len(t, descs, 1, "key %q bound to multiple actions: %v", kk, descs)
	}
}
