// Package gitinfo resolves git branch and repository-identity metadata for
// a session's working directory, using go-git instead of shelling to the
// git CLI (adapted from handler/git/git.go's PlainOpen/Head usage).
package gitinfo

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Info is the git metadata enrichment attached to a Session (SPEC_FULL.md
// "Supplemented features").
type Info struct {
	Branch string
	RepoID string
}

// Resolve inspects cwd and returns branch/repo-identity info. Returns the
// zero Info, no error, when cwd is not inside a git working tree — absence
// of git metadata is not a failure.
func Resolve(cwd string) Info {
	root := resolveGitRoot(cwd)
	if root == "" {
		return Info{}
	}

	repo, err := git.PlainOpen(root)
	if err != nil {
		return Info{}
	}

	var info Info
	if head, err := repo.Head(); err == nil {
		info.Branch = head.Name().Short()
	}
	info.RepoID = firstCommitHash(repo)
	return info
}

// firstCommitHash walks the commit log from HEAD to its root and returns
// the oldest commit's hash, used as a stable repo-identity proxy: two
// working directories sharing a history share this id even across clones
// or worktrees.
func firstCommitHash(repo *git.Repository) string {
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	commits, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return ""
	}
	var last *object.Commit
	_ = commits.ForEach(func(c *object.Commit) error {
		last = c
		return nil
	})
	if last == nil {
		return ""
	}
	return last.Hash.String()
}

// resolveGitRoot walks up from dir looking for a .git entry, following
// worktree "gitdir:" pointer files to the main repository's working tree
// root so sessions opened from a linked worktree resolve to the same
// RepoID as the primary checkout (ported idea from the agent CLI's own
// project-directory resolution).
func resolveGitRoot(dir string) string {
	dir = filepath.Clean(dir)
	for {
		gitPath := filepath.Join(dir, ".git")
		info, err := os.Stat(gitPath)
		if err == nil {
			if info.IsDir() {
				return dir
			}
			if root := followWorktreeLink(gitPath); root != "" {
				return root
			}
			return dir
		}
		if !isNotExist(err) {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// followWorktreeLink reads a ".git" file (not directory) left behind in a
// linked worktree, of the form "gitdir: /path/to/main/.git/worktrees/<name>",
// and resolves it back to the main repository's working tree root.
func followWorktreeLink(gitFile string) string {
	data, err := os.ReadFile(gitFile)
	if err != nil {
		return ""
	}
	line := strings.TrimSpace(string(data))
	const prefix = "gitdir:"
	if !strings.HasPrefix(line, prefix) {
		return ""
	}
	gitdir := strings.TrimSpace(strings.TrimPrefix(line, prefix))

	// gitdir looks like <mainRepo>/.git/worktrees/<name>; the main repo's
	// working tree is three levels up from worktrees/<name>.
	idx := strings.Index(gitdir, ".git")
	if idx < 0 {
		return ""
	}
	return filepath.Dir(gitdir[:idx+len(".git")])
}

func isNotExist(err error) bool {
	return err != nil && (os.IsNotExist(err) || err == fs.ErrNotExist)
}
