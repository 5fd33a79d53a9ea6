package git

import (
	"context"
	"errors"
)

// Pattern: Strategy -- swap the hosting platform
// without changing the publish workflow.

// ErrNotFound is returned (wrapped) by remotes when a
// file, branch or object does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmptyCommit is returned (wrapped) by remotes that
// cannot record a commit without file changes.
var ErrEmptyCommit = errors.New("commit has no file changes")

// DefaultFileMode is the tree mode used for every
// published file.
const DefaultFileMode = "100644"

// File is the content of a file at a given ref.
type File struct {
	// Path is the repository relative path.
	Path string
	// Content is the decoded file content.
	Content string
	// SHA identifies the file version. Remotes
	// expect it back when deleting the file.
	SHA string
}

// Author is the single identity used as both author
// and committer.
type Author struct {
	Name  string
	Email string
}

// BranchHead is the tip of a branch.
type BranchHead struct {
	CommitSHA string
	TreeSHA   string
}

// TreeEntry points a path at a blob.
type TreeEntry struct {
	Path    string
	Mode    string
	BlobSHA string
}

// Commit describes a commit to create.
type Commit struct {
	Message string
	Tree    string
	Parent  string
	Author  Author
}

// DeleteRequest removes one file from a branch as a
// standalone commit.
type DeleteRequest struct {
	Path    string
	Branch  string
	SHA     string
	Message string
	Author  Author
}

// PullRequest describes a pull request to open.
type PullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// FileReader reads file content at a ref.
type FileReader interface {
	// GetFile returns ErrNotFound when path does not
	// exist at ref.
	GetFile(
		ctx context.Context,
		path string,
		ref string,
	) (*File, error)
}

// BranchChecker reports whether a branch exists.
type BranchChecker interface {
	BranchExists(
		ctx context.Context,
		branch string,
	) (bool, error)
}

// GitWriter creates objects and moves refs.
type GitWriter interface {
	BranchHead(
		ctx context.Context,
		branch string,
	) (BranchHead, error)
	CreateBlob(
		ctx context.Context,
		content string,
	) (string, error)
	CreateTree(
		ctx context.Context,
		baseTree string,
		entries []TreeEntry,
	) (string, error)
	CreateCommit(
		ctx context.Context,
		commit Commit,
	) (string, error)
	CreateRef(
		ctx context.Context,
		branch string,
		sha string,
	) error
	UpdateRef(
		ctx context.Context,
		branch string,
		sha string,
	) error
	DeleteFile(
		ctx context.Context,
		req DeleteRequest,
	) error
	CreatePullRequest(
		ctx context.Context,
		pr PullRequest,
	) (string, error)
}

// Remote is a hosted repository.
type Remote interface {
	FileReader
	BranchChecker
	GitWriter

	// Identity resolves the account the remote is
	// authenticated as.
	Identity(ctx context.Context) (Author, error)
}
