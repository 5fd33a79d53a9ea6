package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/repo_modifier/modify/git"
)

// Config holds the settings needed to talk to a GitHub
// repository.
type Config struct {
	// RepoOwner is the GitHub user or organisation
	// that owns the repository.
	RepoOwner string
	// Repo is the repository name (without owner).
	Repo string
	// AccessToken is a personal access token or
	// GitHub App token used for authentication.
	AccessToken string
	// InstanceURL is an optional GitHub Enterprise
	// base URL (e.g. "https://git.corp.example.com").
	// Leave empty for github.com.
	InstanceURL string
}

// Provider publishes changes to a GitHub repository
// through the REST API.
//
// Pattern: Strategy -- implements git.Remote.
type Provider struct {
	client    *gh.Client
	repoOwner string
	repo      string
}

var _ git.Remote = (*Provider)(nil)

// NewProvider validates cfg and returns a Provider
// ready to read and publish.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating github provider"

	if cfg.RepoOwner == "" {
		return nil, fmt.Errorf(
			"%s: repo owner must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	client := gh.NewClient(nil).
		WithAuthToken(cfg.AccessToken)

	if cfg.InstanceURL != "" {
		base := strings.TrimSuffix(
			cfg.InstanceURL, "/",
		)

		var err error

		client, err = client.WithEnterpriseURLs(
			base+"/api/v3/", base+"/api/uploads/",
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: enterprise urls: %w",
				errCtx, err,
			)
		}
	}

	return &Provider{
		client:    client,
		repoOwner: cfg.RepoOwner,
		repo:      cfg.Repo,
	}, nil
}

// Identity returns the profile name and email of the
// authenticated user. Either may be empty when the
// profile does not expose it.
func (p *Provider) Identity(
	ctx context.Context,
) (git.Author, error) {
	const errCtx = "getting github identity"

	user, _, err := p.client.Users.Get(ctx, "")
	if err != nil {
		return git.Author{}, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	return git.Author{
		Name:  user.GetName(),
		Email: user.GetEmail(),
	}, nil
}

// GetFile fetches path at ref. Returns git.ErrNotFound
// when the file does not exist.
func (p *Provider) GetFile(
	ctx context.Context,
	path string,
	ref string,
) (*git.File, error) {
	const errCtx = "getting github file"

	fc, _, resp, err := p.client.Repositories.GetContents(
		ctx, p.repoOwner, p.repo, path,
		&gh.RepositoryContentGetOptions{Ref: ref},
	)
	if isNotFound(resp) {
		return nil, fmt.Errorf(
			"%s %s@%s: %w",
			errCtx, path, ref, git.ErrNotFound,
		)
	}

	if err != nil {
		return nil, fmt.Errorf(
			"%s %s@%s: %w", errCtx, path, ref, err,
		)
	}

	if fc == nil {
		return nil, fmt.Errorf(
			"%s %s@%s: path is a directory",
			errCtx, path, ref,
		)
	}

	content, err := fc.GetContent()
	if err != nil {
		return nil, fmt.Errorf(
			"%s %s@%s: decode: %w",
			errCtx, path, ref, err,
		)
	}

	return &git.File{
		Path:    path,
		Content: content,
		SHA:     fc.GetSHA(),
	}, nil
}

// BranchExists reports whether branch exists.
func (p *Provider) BranchExists(
	ctx context.Context,
	branch string,
) (bool, error) {
	const errCtx = "checking github branch"

	_, resp, err := p.client.Repositories.GetBranch(
		ctx, p.repoOwner, p.repo, branch, 1,
	)
	if isNotFound(resp) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	return true, nil
}

// BranchHead returns the tip commit and tree of
// branch.
func (p *Provider) BranchHead(
	ctx context.Context,
	branch string,
) (git.BranchHead, error) {
	const errCtx = "getting github branch head"

	br, resp, err := p.client.Repositories.GetBranch(
		ctx, p.repoOwner, p.repo, branch, 1,
	)
	if isNotFound(resp) {
		return git.BranchHead{}, fmt.Errorf(
			"%s %s: %w", errCtx, branch, git.ErrNotFound,
		)
	}

	if err != nil {
		return git.BranchHead{}, fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	head := br.GetCommit()

	return git.BranchHead{
		CommitSHA: head.GetSHA(),
		TreeSHA:   head.GetCommit().GetTree().GetSHA(),
	}, nil
}

// CreateBlob stores content as a UTF-8 blob.
func (p *Provider) CreateBlob(
	ctx context.Context,
	content string,
) (string, error) {
	const errCtx = "creating github blob"

	blob, _, err := p.client.Git.CreateBlob(
		ctx, p.repoOwner, p.repo,
		&gh.Blob{
			Content:  gh.Ptr(content),
			Encoding: gh.Ptr("utf-8"),
		},
	)
	if err != nil {
		logErrorResponse(err)

		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return blob.GetSHA(), nil
}

// CreateTree creates a tree made of baseTree plus
// entries.
func (p *Provider) CreateTree(
	ctx context.Context,
	baseTree string,
	entries []git.TreeEntry,
) (string, error) {
	const errCtx = "creating github tree"

	ghEntries := make([]*gh.TreeEntry, 0, len(entries))

	for _, en := range entries {
		ghEntries = append(ghEntries, &gh.TreeEntry{
			Path: gh.Ptr(en.Path),
			Mode: gh.Ptr(en.Mode),
			Type: gh.Ptr("blob"),
			SHA:  gh.Ptr(en.BlobSHA),
		})
	}

	tree, _, err := p.client.Git.CreateTree(
		ctx, p.repoOwner, p.repo, baseTree, ghEntries,
	)
	if err != nil {
		logErrorResponse(err)

		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return tree.GetSHA(), nil
}

// CreateCommit creates a commit object. Author and
// committer are the same identity.
func (p *Provider) CreateCommit(
	ctx context.Context,
	commit git.Commit,
) (string, error) {
	const errCtx = "creating github commit"

	who := &gh.CommitAuthor{
		Name:  gh.Ptr(commit.Author.Name),
		Email: gh.Ptr(commit.Author.Email),
	}

	created, _, err := p.client.Git.CreateCommit(
		ctx, p.repoOwner, p.repo,
		&gh.Commit{
			Message:   gh.Ptr(commit.Message),
			Tree:      &gh.Tree{SHA: gh.Ptr(commit.Tree)},
			Parents:   []*gh.Commit{{SHA: gh.Ptr(commit.Parent)}},
			Author:    who,
			Committer: who,
		},
		nil,
	)
	if err != nil {
		logErrorResponse(err)

		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return created.GetSHA(), nil
}

// CreateRef creates refs/heads/<branch> at sha.
func (p *Provider) CreateRef(
	ctx context.Context,
	branch string,
	sha string,
) error {
	const errCtx = "creating github ref"

	_, _, err := p.client.Git.CreateRef(
		ctx, p.repoOwner, p.repo,
		&gh.Reference{
			Ref:    gh.Ptr("refs/heads/" + branch),
			Object: &gh.GitObject{SHA: gh.Ptr(sha)},
		},
	)
	if err != nil {
		logErrorResponse(err)

		return fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	return nil
}

// UpdateRef fast-forwards refs/heads/<branch> to sha.
func (p *Provider) UpdateRef(
	ctx context.Context,
	branch string,
	sha string,
) error {
	const errCtx = "updating github ref"

	_, _, err := p.client.Git.UpdateRef(
		ctx, p.repoOwner, p.repo,
		&gh.Reference{
			Ref:    gh.Ptr("refs/heads/" + branch),
			Object: &gh.GitObject{SHA: gh.Ptr(sha)},
		},
		false,
	)
	if err != nil {
		logErrorResponse(err)

		return fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	return nil
}

// DeleteFile removes a file from a branch with its own
// commit.
func (p *Provider) DeleteFile(
	ctx context.Context,
	req git.DeleteRequest,
) error {
	const errCtx = "deleting github file"

	who := &gh.CommitAuthor{
		Name:  gh.Ptr(req.Author.Name),
		Email: gh.Ptr(req.Author.Email),
	}

	_, _, err := p.client.Repositories.DeleteFile(
		ctx, p.repoOwner, p.repo, req.Path,
		&gh.RepositoryContentFileOptions{
			Message:   gh.Ptr(req.Message),
			SHA:       gh.Ptr(req.SHA),
			Branch:    gh.Ptr(req.Branch),
			Author:    who,
			Committer: who,
		},
	)
	if err != nil {
		logErrorResponse(err)

		return fmt.Errorf("%s %s: %w", errCtx, req.Path, err)
	}

	return nil
}

// CreatePullRequest opens a pull request and returns
// its HTML URL.
func (p *Provider) CreatePullRequest(
	ctx context.Context,
	pr git.PullRequest,
) (string, error) {
	const errCtx = "creating github pull request"

	created, _, err := p.client.PullRequests.Create(
		ctx, p.repoOwner, p.repo,
		&gh.NewPullRequest{
			Title: gh.Ptr(pr.Title),
			Head:  gh.Ptr(pr.Head),
			Base:  gh.Ptr(pr.Base),
			Body:  gh.Ptr(pr.Body),
		},
	)
	if err != nil {
		logErrorResponse(err)

		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return created.GetHTMLURL(), nil
}

func isNotFound(resp *gh.Response) bool {
	return resp != nil &&
		resp.StatusCode == http.StatusNotFound
}

// logErrorResponse logs the API error details for
// debugging.
func logErrorResponse(err error) {
	var er *gh.ErrorResponse
	if !errors.As(err, &er) {
		return
	}

	slog.Warn(
		"github response",
		"message", er.Message,
		"errors", er.Errors,
	)
}
