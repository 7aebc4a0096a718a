package gitinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func initRepoWithCommit(t *testing.T, dir string) {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	fpath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(fpath, []byte("hello"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	sig := &object.Signature{Name: "tester", Email: "tester@example.com"}
	_, err = wt.Commit("initial", &git.CommitOptions{Author: sig})
	require.NoError(t, err)
}

func TestResolveReturnsZeroInfoOutsideGit(t *testing.T) {
	dir := t.TempDir()
	info := Resolve(dir)
	require.Empty(t, info.Branch)
	require.Empty(t, info.RepoID)
}

func TestResolveFindsBranchAndRepoID(t *testing.T) {
	dir := t.TempDir()
	initRepoWithCommit(t, dir)

	info := Resolve(dir)
	require.NotEmpty(t, info.Branch)
	require.NotEmpty(t, info.RepoID)
}

func TestResolveSameRepoIDFromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	initRepoWithCommit(t, dir)

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	top := Resolve(dir)
	nested := Resolve(sub)
	require.Equal(t, top.RepoID, nested.RepoID)
}
