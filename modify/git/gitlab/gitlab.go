package gitlab

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/repo_modifier/modify/git"
)

// Config holds the settings needed to talk to a GitLab
// project.
type Config struct {
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.com").
	Host string
	// Repo is the full project path
	// (e.g. "org/project").
	Repo string
	// AccessToken is a personal or project access
	// token used for authentication.
	AccessToken string
}

// Provider publishes changes to a GitLab project.
//
// GitLab cannot create free-standing blobs, trees or
// commits, so those are staged in memory and turned
// into a single commits API call when a ref is created
// or moved. Tree "SHAs" handed out by BranchHead are
// commit IDs.
//
// Pattern: Strategy -- implements git.Remote.
type Provider struct {
	client *gl.Client
	repo   string

	seq     int
	blobs   map[string]string
	trees   map[string]*stagedTree
	commits map[string]*stagedCommit
}

type stagedTree struct {
	actions []*gl.CommitActionOptions
}

type stagedCommit struct {
	parent  string
	message string
	author  git.Author
	actions []*gl.CommitActionOptions
}

var _ git.Remote = (*Provider)(nil)

// NewProvider validates cfg and returns a Provider
// ready to read and publish.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating gitlab provider"

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	if cfg.Repo == "" {
		return nil, fmt.Errorf(
			"%s: repo must be set", errCtx,
		)
	}

	host := cfg.Host
	if host == "" {
		host = "https://gitlab.com"
	}

	client, err := gl.NewClient(
		cfg.AccessToken,
		gl.WithBaseURL(host),
		gl.WithCustomRetryMax(0),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: new client: %w", errCtx, err,
		)
	}

	return &Provider{
		client:  client,
		repo:    cfg.Repo,
		blobs:   make(map[string]string),
		trees:   make(map[string]*stagedTree),
		commits: make(map[string]*stagedCommit),
	}, nil
}

// Identity returns the name and email of the token
// owner.
func (p *Provider) Identity(
	ctx context.Context,
) (git.Author, error) {
	const errCtx = "getting gitlab identity"

	user, _, err := p.client.Users.CurrentUser(
		gl.WithContext(ctx),
	)
	if err != nil {
		return git.Author{}, fmt.Errorf(
			"%s: %w", errCtx, err,
		)
	}

	email := user.Email
	if email == "" {
		email = user.PublicEmail
	}

	return git.Author{Name: user.Name, Email: email}, nil
}

// GetFile fetches path at ref. The returned SHA is the
// last commit touching the file, which is what the
// delete endpoint expects.
func (p *Provider) GetFile(
	ctx context.Context,
	path string,
	ref string,
) (*git.File, error) {
	const errCtx = "getting gitlab file"

	fi, resp, err := p.client.RepositoryFiles.GetFile(
		p.repo, path,
		&gl.GetFileOptions{Ref: &ref},
		gl.WithContext(ctx),
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

	content := fi.Content

	if fi.Encoding == "base64" {
		raw, decErr := base64.StdEncoding.DecodeString(
			fi.Content,
		)
		if decErr != nil {
			return nil, fmt.Errorf(
				"%s %s@%s: decode: %w",
				errCtx, path, ref, decErr,
			)
		}

		content = string(raw)
	}

	return &git.File{
		Path:    path,
		Content: content,
		SHA:     fi.LastCommitID,
	}, nil
}

// BranchExists reports whether branch exists.
func (p *Provider) BranchExists(
	ctx context.Context,
	branch string,
) (bool, error) {
	const errCtx = "checking gitlab branch"

	_, resp, err := p.client.Branches.GetBranch(
		p.repo, branch, gl.WithContext(ctx),
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

// BranchHead returns the tip of branch. The commit ID
// doubles as the tree token.
func (p *Provider) BranchHead(
	ctx context.Context,
	branch string,
) (git.BranchHead, error) {
	const errCtx = "getting gitlab branch head"

	br, resp, err := p.client.Branches.GetBranch(
		p.repo, branch, gl.WithContext(ctx),
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

	if br.Commit == nil {
		return git.BranchHead{}, fmt.Errorf(
			"%s %s: branch has no commit", errCtx, branch,
		)
	}

	return git.BranchHead{
		CommitSHA: br.Commit.ID,
		TreeSHA:   br.Commit.ID,
	}, nil
}

// CreateBlob stages content and returns a local ID.
func (p *Provider) CreateBlob(
	_ context.Context,
	content string,
) (string, error) {
	id := p.nextID("blob")
	p.blobs[id] = content

	return id, nil
}

// CreateTree stages entries on top of baseTree. Each
// entry becomes a create or update action depending on
// whether the file exists at baseTree. Updates are
// pinned to the last commit that touched the file.
func (p *Provider) CreateTree(
	ctx context.Context,
	baseTree string,
	entries []git.TreeEntry,
) (string, error) {
	const errCtx = "staging gitlab tree"

	tree := &stagedTree{}

	for _, en := range entries {
		content, ok := p.blobs[en.BlobSHA]
		if !ok {
			return "", fmt.Errorf(
				"%s: unknown blob %s", errCtx, en.BlobSHA,
			)
		}

		path := en.Path
		action := gl.FileUpdate
		opt := &gl.CommitActionOptions{
			Action:   &action,
			FilePath: &path,
			Content:  &content,
		}

		file, err := p.GetFile(ctx, en.Path, baseTree)

		switch {
		case errors.Is(err, git.ErrNotFound):
			action = gl.FileCreate
		case err != nil:
			return "", fmt.Errorf("%s: %w", errCtx, err)
		default:
			// GitLab rejects the update when the file
			// changed after this commit.
			opt.LastCommitID = &file.SHA
		}

		tree.actions = append(tree.actions, opt)
	}

	id := p.nextID("tree")
	p.trees[id] = tree

	return id, nil
}

// CreateCommit stages a commit. A tree that was not
// staged is taken to be the parent's tree unchanged.
func (p *Provider) CreateCommit(
	_ context.Context,
	commit git.Commit,
) (string, error) {
	sc := &stagedCommit{
		parent:  commit.Parent,
		message: commit.Message,
		author:  commit.Author,
	}

	if tree, ok := p.trees[commit.Tree]; ok {
		sc.actions = tree.actions
	}

	id := p.nextID("commit")
	p.commits[id] = sc

	return id, nil
}

// CreateRef creates branch. A staged commit is pushed
// as the first commit of the new branch; a commit
// without actions creates the branch at its parent.
func (p *Provider) CreateRef(
	ctx context.Context,
	branch string,
	sha string,
) error {
	const errCtx = "creating gitlab branch"

	sc, ok := p.commits[sha]
	if ok && len(sc.actions) > 0 {
		if err := p.pushCommit(
			ctx, branch, sc.parent, sc,
		); err != nil {
			return fmt.Errorf(
				"%s %s: %w", errCtx, branch, err,
			)
		}

		return nil
	}

	ref := sha
	if ok {
		ref = sc.parent
	}

	_, _, err := p.client.Branches.CreateBranch(
		p.repo,
		&gl.CreateBranchOptions{
			Branch: &branch,
			Ref:    &ref,
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf(
			"%s %s: %w", errCtx, branch, err,
		)
	}

	slog.Debug("branched at parent", "branch", branch, "ref", ref)

	return nil
}

// UpdateRef pushes a staged commit onto an existing
// branch. GitLab cannot move a ref to an arbitrary
// commit, so only staged commits are accepted, and only
// while the branch still points at their parent. A
// commit without actions cannot be recorded and fails
// with git.ErrEmptyCommit.
func (p *Provider) UpdateRef(
	ctx context.Context,
	branch string,
	sha string,
) error {
	const errCtx = "updating gitlab branch"

	sc, ok := p.commits[sha]
	if !ok {
		return fmt.Errorf(
			"%s %s: commit %s was not staged by this run",
			errCtx, branch, sha,
		)
	}

	head, err := p.BranchHead(ctx, branch)
	if err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	if head.CommitSHA != sc.parent {
		return fmt.Errorf(
			"%s %s: branch moved to %s, expected %s",
			errCtx, branch, head.CommitSHA, sc.parent,
		)
	}

	if len(sc.actions) == 0 {
		return fmt.Errorf(
			"%s %s: %w", errCtx, branch, git.ErrEmptyCommit,
		)
	}

	if err := p.pushCommit(ctx, branch, "", sc); err != nil {
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
	const errCtx = "deleting gitlab file"

	opts := &gl.DeleteFileOptions{
		Branch:        &req.Branch,
		CommitMessage: &req.Message,
		AuthorName:    &req.Author.Name,
		AuthorEmail:   &req.Author.Email,
	}

	if req.SHA != "" {
		opts.LastCommitID = &req.SHA
	}

	_, err := p.client.RepositoryFiles.DeleteFile(
		p.repo, req.Path, opts, gl.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, req.Path, err)
	}

	return nil
}

// CreatePullRequest opens a merge request and returns
// its web URL.
func (p *Provider) CreatePullRequest(
	ctx context.Context,
	pr git.PullRequest,
) (string, error) {
	const errCtx = "creating gitlab merge request"

	created, _, err := p.client.MergeRequests.CreateMergeRequest(
		p.repo,
		&gl.CreateMergeRequestOptions{
			Title:        &pr.Title,
			Description:  &pr.Body,
			SourceBranch: &pr.Head,
			TargetBranch: &pr.Base,
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return created.WebURL, nil
}

// pushCommit materialises a staged commit on branch.
// startSHA is only set when the branch is new.
func (p *Provider) pushCommit(
	ctx context.Context,
	branch string,
	startSHA string,
	sc *stagedCommit,
) error {
	opts := &gl.CreateCommitOptions{
		Branch:        &branch,
		CommitMessage: &sc.message,
		AuthorName:    &sc.author.Name,
		AuthorEmail:   &sc.author.Email,
		Actions:       sc.actions,
	}

	if startSHA != "" {
		opts.StartSHA = &startSHA
	}

	created, _, err := p.client.Commits.CreateCommit(
		p.repo, opts, gl.WithContext(ctx),
	)
	if err != nil {
		return err
	}

	slog.Debug(
		"pushed commit",
		"branch", branch,
		"sha", created.ID,
	)

	return nil
}

func (p *Provider) nextID(kind string) string {
	p.seq++

	return kind + ":" + strconv.Itoa(p.seq)
}

func isNotFound(resp *gl.Response) bool {
	return resp != nil &&
		resp.StatusCode == http.StatusNotFound
}
