// Package planner decides where a change set is published:
// directly on the base branch, or on a fresh branch named
// after the content fingerprint for a pull request.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/byte4ever/repo_modifier/modify/git"
)

// Mode is how a commit reaches the repository.
type Mode int

const (
	// DirectCommit moves the base branch to the commit.
	DirectCommit Mode = iota
	// PullRequest creates a new branch and opens a pull
	// request from it.
	PullRequest
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case DirectCommit:
		return "direct-commit"
	case PullRequest:
		return "pull-request"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// TimestampLayout suffixes duplicate branch names.
const TimestampLayout = "20060102150405"

// Target is where a run publishes.
type Target struct {
	Branch string
	// Existing is set when the fingerprint branch was
	// already present and a timestamped branch is used.
	Existing bool
	Mode     Mode
}

// DuplicateChangeError is returned when the fingerprint
// branch exists and duplicates are not allowed. It means
// the same edit was already proposed.
type DuplicateChangeError struct {
	Branch string
}

func (e *DuplicateChangeError) Error() string {
	return fmt.Sprintf(
		"branch %s already exists, the same change "+
			"was already proposed", e.Branch,
	)
}

// BranchName returns the content addressed branch name.
func BranchName(prefix string, fingerprint string) string {
	return prefix + "-" + fingerprint
}

// Request holds the planning inputs.
type Request struct {
	Base            string
	Prefix          string
	Fingerprint     string
	NoPR            bool
	AllowDuplicates bool
}

// Planner computes publish targets. Now defaults to
// time.Now.
type Planner struct {
	Checker git.BranchChecker
	Now     func() time.Time
}

// Plan resolves the target for req. The remote is only
// queried in pull request mode.
func (p *Planner) Plan(
	ctx context.Context,
	req Request,
) (Target, error) {
	const errCtx = "planning publish target"

	if req.NoPR {
		return Target{
			Branch: req.Base,
			Mode:   DirectCommit,
		}, nil
	}

	branch := BranchName(req.Prefix, req.Fingerprint)

	exists, err := p.Checker.BranchExists(ctx, branch)
	if err != nil {
		return Target{}, fmt.Errorf(
			"%s: %s: %w", errCtx, branch, err,
		)
	}

	if !exists {
		return Target{
			Branch: branch,
			Mode:   PullRequest,
		}, nil
	}

	if !req.AllowDuplicates {
		return Target{}, &DuplicateChangeError{Branch: branch}
	}

	dup := req.Base + "-" + p.now().Format(TimestampLayout)

	slog.Info(
		"branch already exists, using timestamped branch",
		"existing", branch,
		"branch", dup,
	)

	return Target{
		Branch:   dup,
		Existing: true,
		Mode:     PullRequest,
	}, nil
}

func (p *Planner) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}

	return p.Now()
}
