// Package watcher implements the in-container control plane's git watcher
// router (§4.4): commit, diff, and log operations over the workspace
// treated as a git repository. No teacher file touches git plumbing, so
// this package is new, built directly against go-git/v5's Worktree/Log/Patch
// API — the domain-stack dependency the spec's "git watcher" line names with
// no in-pack precedent to imitate beyond the library itself.
package watcher

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
)

const (
	committerName  = "sandboxrt"
	committerEmail = "sandboxrt@localhost"
)

// Router serves git operations over the repository rooted at workspace,
// opening (and initializing, if absent) it lazily.
type Router struct {
	workspace string
}

// New builds a Router over the repository at workspace.
func New(workspace string) *Router {
	return &Router{workspace: workspace}
}

func (r *Router) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(r.workspace)
	if err == nil {
		return repo, nil
	}
	if err != git.ErrRepositoryNotExists {
		return nil, fmt.Errorf("watcher: open %s: %w", r.workspace, err)
	}
	repo, err = git.PlainInit(r.workspace, false)
	if err != nil {
		return nil, fmt.Errorf("watcher: init %s: %w", r.workspace, err)
	}
	return repo, nil
}

func signature() *object.Signature {
	return &object.Signature{Name: committerName, Email: committerEmail, When: time.Now()}
}

// CommitChanges stages every change under the workspace and commits it with
// message, returning the new commit hash.
func (r *Router) CommitChanges(message string) (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("watcher: worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("watcher: add: %w", err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: signature()})
	if err != nil {
		return "", fmt.Errorf("watcher: commit: %w", err)
	}
	return hash.String(), nil
}

// GenerateDiff returns a unified diff. When both commitA and commitB are
// empty, the diff is between HEAD and the current uncommitted worktree
// state; otherwise it is between the two named commits.
func (r *Router) GenerateDiff(commitA, commitB string) (string, error) {
	repo, err := r.open()
	if err != nil {
		return "", err
	}

	if commitA == "" && commitB == "" {
		return r.diffAgainstWorktree(repo)
	}

	from, err := resolveCommit(repo, commitA)
	if err != nil {
		return "", err
	}
	to, err := resolveCommit(repo, commitB)
	if err != nil {
		return "", err
	}
	patch, err := from.Patch(to)
	if err != nil {
		return "", fmt.Errorf("watcher: patch %s..%s: %w", commitA, commitB, err)
	}
	return patch.String(), nil
}

func (r *Router) diffAgainstWorktree(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("watcher: head: %w", err)
	}
	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("watcher: head commit: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("watcher: worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("watcher: status: %w", err)
	}
	if status.IsClean() {
		return "", nil
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return "", fmt.Errorf("watcher: head tree: %w", err)
	}

	paths := make([]string, 0, len(status))
	for path := range status {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var sb strings.Builder
	for _, path := range paths {
		aLines, err := treeFileLines(headTree, path)
		if err != nil {
			return "", fmt.Errorf("watcher: read tree content %s: %w", path, err)
		}
		bLines, err := worktreeFileLines(wt, path)
		if err != nil {
			return "", fmt.Errorf("watcher: read worktree content %s: %w", path, err)
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        aLines,
			B:        bLines,
			FromFile: "a/" + path,
			ToFile:   "b/" + path,
			Context:  3,
		})
		if err != nil {
			return "", fmt.Errorf("watcher: unified diff %s: %w", path, err)
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// treeFileLines returns path's content at tree as lines, or nil if the path
// doesn't exist there (the file was added since HEAD).
func treeFileLines(tree *object.Tree, path string) ([]string, error) {
	f, err := tree.File(path)
	if err != nil {
		if err == object.ErrFileNotFound {
			return nil, nil
		}
		return nil, err
	}
	content, err := f.Contents()
	if err != nil {
		return nil, err
	}
	return splitLines(content), nil
}

// worktreeFileLines returns path's current content in wt as lines, or nil if
// the path is absent (the file was deleted from the worktree).
func worktreeFileLines(wt *git.Worktree, path string) ([]string, error) {
	f, err := wt.Filesystem.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return splitLines(string(data)), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.SplitAfter(s, "\n")
}

func resolveCommit(repo *git.Repository, ref string) (*object.Commit, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("watcher: resolve %s: %w", ref, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("watcher: commit object %s: %w", ref, err)
	}
	return commit, nil
}

// LogEntry is one commit's metadata plus its unified diff against its first
// parent (or the empty tree, for the root commit).
type LogEntry struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
	Author  string `json:"author"`
	When    string `json:"when"`
	Diff    string `json:"diff"`
}

// GitLogs returns every commit reachable from HEAD, newest first, each with
// its unified diff.
func (r *Router) GitLogs() ([]LogEntry, error) {
	repo, err := r.open()
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return []LogEntry{}, nil // no commits yet
		}
		return nil, fmt.Errorf("watcher: head: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("watcher: log: %w", err)
	}
	defer iter.Close()

	var entries []LogEntry
	err = iter.ForEach(func(c *object.Commit) error {
		entry := LogEntry{
			Hash:    c.Hash.String(),
			Message: strings.TrimSpace(c.Message),
			Author:  c.Author.Name,
			When:    c.Author.When.UTC().Format(time.RFC3339),
		}
		parent, perr := c.Parent(0)
		if perr == nil {
			if patch, derr := parent.Patch(c); derr == nil {
				entry.Diff = patch.String()
			}
		} else if tree, terr := c.Tree(); terr == nil {
			if changes, cerr := object.DiffTree(nil, tree); cerr == nil {
				if patch, pErr := changes.Patch(); pErr == nil {
					entry.Diff = patch.String()
				}
			}
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("watcher: iterate log: %w", err)
	}
	return entries, nil
}
