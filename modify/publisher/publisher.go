package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/byte4ever/repo_modifier/modify/changes"
	"github.com/byte4ever/repo_modifier/modify/git"
	"github.com/byte4ever/repo_modifier/modify/planner"
)

// Remote is the part of git.Remote the publisher needs.
type Remote interface {
	git.FileReader
	git.GitWriter
}

// Built is a commit created but not yet referenced by any
// branch.
type Built struct {
	SHA string
	// Kept lists the files written by the commit.
	Kept []string
	// Deleted lists the files to remove after the ref
	// is published.
	Deleted []string
}

// Result describes what was published.
type Result struct {
	Branch string
	// URL is the pull request URL, empty in direct
	// commit mode.
	URL string
}

// Publisher writes to one remote as one identity.
type Publisher struct {
	remote Remote
	author git.Author
}

// New creates a publisher committing as author.
func New(remote Remote, author git.Author) *Publisher {
	return &Publisher{
		remote: remote,
		author: author,
	}
}

// Commit creates a commit on top of the head of base
// holding the final content of every modified file. When
// nothing but deletions (or nothing at all) changed, the
// base tree is reused.
func (p *Publisher) Commit(
	ctx context.Context,
	base string,
	cs *changes.ChangeSet,
	message string,
) (*Built, error) {
	const errCtx = "building commit"

	head, err := p.remote.BranchHead(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	built := &Built{
		Kept:    cs.WithStatus(changes.Modified),
		Deleted: cs.WithStatus(changes.Deleted),
	}

	tree := head.TreeSHA

	if len(built.Kept) > 0 {
		after := cs.After()
		entries := make([]git.TreeEntry, 0, len(built.Kept))

		for _, path := range built.Kept {
			blob, err := p.remote.CreateBlob(
				ctx, after[path].String(),
			)
			if err != nil {
				return nil, fmt.Errorf(
					"%s: blob for %s: %w", errCtx, path, err,
				)
			}

			entries = append(entries, git.TreeEntry{
				Path:    path,
				Mode:    git.DefaultFileMode,
				BlobSHA: blob,
			})
		}

		tree, err = p.remote.CreateTree(ctx, head.TreeSHA, entries)
		if err != nil {
			return nil, fmt.Errorf("%s: tree: %w", errCtx, err)
		}
	}

	built.SHA, err = p.remote.CreateCommit(ctx, git.Commit{
		Message: message,
		Tree:    tree,
		Parent:  head.CommitSHA,
		Author:  p.author,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: commit: %w", errCtx, err)
	}

	slog.Info(
		"created commit",
		"sha", built.SHA,
		"parent", head.CommitSHA,
		"files", len(built.Kept),
	)

	return built, nil
}

// DeletionMessage is the commit message of the commit
// removing path.
func DeletionMessage(path string) string {
	return "removed file " + path
}

// Publish makes built reachable from target.Branch, deletes
// the removed files on that branch and, in pull request
// mode, opens a pull request from it into pr.Base. The pull
// request body falls back to its title when empty. A remote
// refusing an empty commit is fine when deletions follow,
// since they make their own commits.
func (p *Publisher) Publish(
	ctx context.Context,
	target planner.Target,
	built *Built,
	pr git.PullRequest,
) (*Result, error) {
	const errCtx = "publishing"

	switch target.Mode {
	case planner.DirectCommit:
		err := p.remote.UpdateRef(ctx, target.Branch, built.SHA)

		switch {
		case errors.Is(err, git.ErrEmptyCommit) &&
			len(built.Deleted) > 0:
			slog.Info(
				"no file content to commit, deleting only",
				"branch", target.Branch,
			)
		case err != nil:
			return nil, fmt.Errorf(
				"%s: update %s: %w", errCtx, target.Branch, err,
			)
		default:
			slog.Info(
				"updated branch",
				"branch", target.Branch,
				"sha", built.SHA,
			)
		}
	case planner.PullRequest:
		err := p.remote.CreateRef(ctx, target.Branch, built.SHA)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: create %s: %w", errCtx, target.Branch, err,
			)
		}

		slog.Info(
			"created branch",
			"branch", target.Branch,
			"sha", built.SHA,
		)
	default:
		return nil, fmt.Errorf(
			"%s: unknown mode %s", errCtx, target.Mode,
		)
	}

	for _, path := range built.Deleted {
		if err := p.deleteFile(ctx, target.Branch, path); err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	res := &Result{Branch: target.Branch}

	if target.Mode != planner.PullRequest {
		return res, nil
	}

	pr.Head = target.Branch
	if pr.Body == "" {
		pr.Body = pr.Title
	}

	url, err := p.remote.CreatePullRequest(ctx, pr)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: pull request: %w", errCtx, err,
		)
	}

	slog.Info("created pull request", "url", url)

	res.URL = url

	return res, nil
}

func (p *Publisher) deleteFile(
	ctx context.Context,
	branch string,
	path string,
) error {
	file, err := p.remote.GetFile(ctx, path, branch)
	if errors.Is(err, git.ErrNotFound) {
		slog.Info(
			"file already removed",
			"path", path,
			"branch", branch,
		)

		return nil
	}

	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	err = p.remote.DeleteFile(ctx, git.DeleteRequest{
		Path:    path,
		Branch:  branch,
		SHA:     file.SHA,
		Message: DeletionMessage(path),
		Author:  p.author,
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	slog.Info("removed file", "path", path, "branch", branch)

	return nil
}
