package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitChangesInitializesRepoAndCommits(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	hash, err := r.CommitChanges("initial commit")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
}

func TestGitLogsReturnsCommitsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v1"), 0o644))
	_, err := r.CommitChanges("first")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v2"), 0o644))
	_, err = r.CommitChanges("second")
	require.NoError(t, err)

	logs, err := r.GitLogs()
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "second", logs[0].Message)
	require.Equal(t, "first", logs[1].Message)
	require.NotEmpty(t, logs[0].Diff)
}

func TestGitLogsEmptyRepoReturnsEmptySlice(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	logs, err := r.GitLogs()
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestGenerateDiffAgainstWorktreeReportsUncommittedChanges(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v1"), 0o644))
	_, err := r.CommitChanges("initial")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new"), 0o644))

	diff, err := r.GenerateDiff("", "")
	require.NoError(t, err)
	require.Contains(t, diff, "b.txt")
}

func TestGenerateDiffAgainstWorktreeProducesRealLineContent(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line one\nline two\n"), 0o644))
	_, err := r.CommitChanges("initial")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line one\nline TWO\n"), 0o644))

	diff, err := r.GenerateDiff("", "")
	require.NoError(t, err)
	require.Contains(t, diff, "-line two")
	require.Contains(t, diff, "+line TWO")
}

func TestGenerateDiffBetweenTwoCommits(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v1"), 0o644))
	first, err := r.CommitChanges("first")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("v2"), 0o644))
	second, err := r.CommitChanges("second")
	require.NoError(t, err)

	diff, err := r.GenerateDiff(first, second)
	require.NoError(t, err)
	require.Contains(t, diff, "a.txt")
}
