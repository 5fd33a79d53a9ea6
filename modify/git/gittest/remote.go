// Package gittest provides an in-memory git.Remote for
// tests. It keeps real blob, tree and commit objects so
// tests can inspect exactly what was published, and it
// journals every call.
package gittest

import (
	"context"
	"crypto/sha1" //nolint:gosec // object IDs, not security
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/byte4ever/repo_modifier/modify/git"
)

// Tree maps paths to blob SHAs.
type Tree map[string]string

// CommitObject is a commit stored by the Remote.
type CommitObject struct {
	SHA     string
	Tree    string
	Parent  string
	Message string
	Author  git.Author
}

// Remote is an in-memory git.Remote. The zero value is
// not usable; create with New.
type Remote struct {
	mu sync.Mutex

	// Owner is the identity returned by Identity.
	Owner git.Author
	// FailOn makes the named method return an error.
	FailOn map[string]error

	blobs    map[string]string
	trees    map[string]Tree
	commits  map[string]CommitObject
	branches map[string]string
	pulls    []git.PullRequest
	calls    []string
}

var _ git.Remote = (*Remote)(nil)

// New creates a remote with one branch holding files.
func New(branch string, files map[string]string) *Remote {
	rm := &Remote{
		Owner: git.Author{
			Name:  "Test Bot",
			Email: "bot@example.com",
		},
		FailOn:   make(map[string]error),
		blobs:    make(map[string]string),
		trees:    make(map[string]Tree),
		commits:  make(map[string]CommitObject),
		branches: make(map[string]string),
	}

	tree := make(Tree, len(files))
	for path, content := range files {
		tree[path] = rm.putBlob(content)
	}

	treeSHA := rm.putTree(tree)
	commit := rm.putCommit(CommitObject{
		Tree:    treeSHA,
		Message: "initial",
	})
	rm.branches[branch] = commit

	return rm
}

// Calls returns the journal of method names, in order.
func (rm *Remote) Calls() []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return append([]string(nil), rm.calls...)
}

// Mutations returns the journaled calls that change
// remote state.
func (rm *Remote) Mutations() []string {
	var out []string

	for _, c := range rm.Calls() {
		switch c {
		case "GetFile", "BranchExists", "BranchHead",
			"Identity":
			continue
		default:
			out = append(out, c)
		}
	}

	return out
}

// Files returns the file contents at the tip of branch.
func (rm *Remote) Files(branch string) map[string]string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	head, ok := rm.branches[branch]
	if !ok {
		return nil
	}

	return rm.treeFiles(rm.commits[head].Tree)
}

// Branches returns the sorted branch names.
func (rm *Remote) Branches() []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	names := make([]string, 0, len(rm.branches))
	for name := range rm.branches {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// History returns the commits reachable from branch,
// newest first, excluding the initial commit.
func (rm *Remote) History(branch string) []CommitObject {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var out []CommitObject

	sha := rm.branches[branch]
	for sha != "" {
		c := rm.commits[sha]
		if c.Parent == "" {
			break
		}

		out = append(out, c)
		sha = c.Parent
	}

	return out
}

// TreeFiles returns the file contents of tree.
func (rm *Remote) TreeFiles(tree string) map[string]string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return rm.treeFiles(tree)
}

// PullRequests returns the opened pull requests.
func (rm *Remote) PullRequests() []git.PullRequest {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	return append([]git.PullRequest(nil), rm.pulls...)
}

// Identity implements git.Remote.
func (rm *Remote) Identity(
	_ context.Context,
) (git.Author, error) {
	if err := rm.record("Identity"); err != nil {
		return git.Author{}, err
	}

	return rm.Owner, nil
}

// GetFile implements git.Remote.
func (rm *Remote) GetFile(
	_ context.Context,
	path string,
	ref string,
) (*git.File, error) {
	if err := rm.record("GetFile"); err != nil {
		return nil, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	head, ok := rm.branches[ref]
	if !ok {
		return nil, fmt.Errorf(
			"ref %s: %w", ref, git.ErrNotFound,
		)
	}

	blob, ok := rm.trees[rm.commits[head].Tree][path]
	if !ok {
		return nil, fmt.Errorf(
			"file %s@%s: %w", path, ref, git.ErrNotFound,
		)
	}

	return &git.File{
		Path:    path,
		Content: rm.blobs[blob],
		SHA:     blob,
	}, nil
}

// BranchExists implements git.Remote.
func (rm *Remote) BranchExists(
	_ context.Context,
	branch string,
) (bool, error) {
	if err := rm.record("BranchExists"); err != nil {
		return false, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	_, ok := rm.branches[branch]

	return ok, nil
}

// BranchHead implements git.Remote.
func (rm *Remote) BranchHead(
	_ context.Context,
	branch string,
) (git.BranchHead, error) {
	if err := rm.record("BranchHead"); err != nil {
		return git.BranchHead{}, err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	head, ok := rm.branches[branch]
	if !ok {
		return git.BranchHead{}, fmt.Errorf(
			"branch %s: %w", branch, git.ErrNotFound,
		)
	}

	return git.BranchHead{
		CommitSHA: head,
		TreeSHA:   rm.commits[head].Tree,
	}, nil
}

// CreateBlob implements git.Remote.
func (rm *Remote) CreateBlob(
	_ context.Context,
	content string,
) (string, error) {
	if err := rm.record("CreateBlob"); err != nil {
		return "", err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	return rm.putBlob(content), nil
}

// CreateTree implements git.Remote.
func (rm *Remote) CreateTree(
	_ context.Context,
	baseTree string,
	entries []git.TreeEntry,
) (string, error) {
	if err := rm.record("CreateTree"); err != nil {
		return "", err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	base, ok := rm.trees[baseTree]
	if !ok {
		return "", fmt.Errorf(
			"tree %s: %w", baseTree, git.ErrNotFound,
		)
	}

	tree := make(Tree, len(base)+len(entries))
	for path, blob := range base {
		tree[path] = blob
	}

	for _, en := range entries {
		if _, ok := rm.blobs[en.BlobSHA]; !ok {
			return "", fmt.Errorf(
				"blob %s: %w", en.BlobSHA, git.ErrNotFound,
			)
		}

		tree[en.Path] = en.BlobSHA
	}

	return rm.putTree(tree), nil
}

// CreateCommit implements git.Remote.
func (rm *Remote) CreateCommit(
	_ context.Context,
	commit git.Commit,
) (string, error) {
	if err := rm.record("CreateCommit"); err != nil {
		return "", err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.trees[commit.Tree]; !ok {
		return "", fmt.Errorf(
			"tree %s: %w", commit.Tree, git.ErrNotFound,
		)
	}

	if _, ok := rm.commits[commit.Parent]; !ok {
		return "", fmt.Errorf(
			"commit %s: %w", commit.Parent, git.ErrNotFound,
		)
	}

	return rm.putCommit(CommitObject{
		Tree:    commit.Tree,
		Parent:  commit.Parent,
		Message: commit.Message,
		Author:  commit.Author,
	}), nil
}

// CreateRef implements git.Remote. It fails when the
// branch already exists.
func (rm *Remote) CreateRef(
	_ context.Context,
	branch string,
	sha string,
) error {
	if err := rm.record("CreateRef"); err != nil {
		return err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.branches[branch]; ok {
		return fmt.Errorf(
			"reference refs/heads/%s already exists", branch,
		)
	}

	if _, ok := rm.commits[sha]; !ok {
		return fmt.Errorf(
			"commit %s: %w", sha, git.ErrNotFound,
		)
	}

	rm.branches[branch] = sha

	return nil
}

// UpdateRef implements git.Remote. Only fast-forwards
// are accepted.
func (rm *Remote) UpdateRef(
	_ context.Context,
	branch string,
	sha string,
) error {
	if err := rm.record("UpdateRef"); err != nil {
		return err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	head, ok := rm.branches[branch]
	if !ok {
		return fmt.Errorf(
			"branch %s: %w", branch, git.ErrNotFound,
		)
	}

	c, ok := rm.commits[sha]
	if !ok {
		return fmt.Errorf(
			"commit %s: %w", sha, git.ErrNotFound,
		)
	}

	if c.Parent != head {
		return fmt.Errorf(
			"update of %s is not a fast forward", branch,
		)
	}

	rm.branches[branch] = sha

	return nil
}

// DeleteFile implements git.Remote.
func (rm *Remote) DeleteFile(
	_ context.Context,
	req git.DeleteRequest,
) error {
	if err := rm.record("DeleteFile"); err != nil {
		return err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	head, ok := rm.branches[req.Branch]
	if !ok {
		return fmt.Errorf(
			"branch %s: %w", req.Branch, git.ErrNotFound,
		)
	}

	current := rm.trees[rm.commits[head].Tree]
	if current[req.Path] != req.SHA {
		return fmt.Errorf(
			"%s does not match %s", req.Path, req.SHA,
		)
	}

	tree := make(Tree, len(current))
	for path, blob := range current {
		if path != req.Path {
			tree[path] = blob
		}
	}

	rm.branches[req.Branch] = rm.putCommit(CommitObject{
		Tree:    rm.putTree(tree),
		Parent:  head,
		Message: req.Message,
		Author:  req.Author,
	})

	return nil
}

// CreatePullRequest implements git.Remote.
func (rm *Remote) CreatePullRequest(
	_ context.Context,
	pr git.PullRequest,
) (string, error) {
	if err := rm.record("CreatePullRequest"); err != nil {
		return "", err
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.branches[pr.Head]; !ok {
		return "", fmt.Errorf(
			"head %s: %w", pr.Head, git.ErrNotFound,
		)
	}

	rm.pulls = append(rm.pulls, pr)

	return "https://git.example.com/org/repo/pull/" +
		strconv.Itoa(len(rm.pulls)), nil
}

func (rm *Remote) record(method string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.calls = append(rm.calls, method)

	return rm.FailOn[method]
}

func (rm *Remote) treeFiles(tree string) map[string]string {
	out := make(map[string]string, len(rm.trees[tree]))
	for path, blob := range rm.trees[tree] {
		out[path] = rm.blobs[blob]
	}

	return out
}

func (rm *Remote) putBlob(content string) string {
	sha := objectID("blob", content)
	rm.blobs[sha] = content

	return sha
}

func (rm *Remote) putTree(tree Tree) string {
	paths := make([]string, 0, len(tree))
	for path := range tree {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	var sb strings.Builder
	for _, path := range paths {
		sb.WriteString(path)
		sb.WriteByte(0)
		sb.WriteString(tree[path])
		sb.WriteByte('\n')
	}

	sha := objectID("tree", sb.String())
	rm.trees[sha] = tree

	return sha
}

func (rm *Remote) putCommit(c CommitObject) string {
	c.SHA = objectID(
		"commit",
		strings.Join([]string{
			c.Tree, c.Parent, c.Message,
			c.Author.Name, c.Author.Email,
			strconv.Itoa(len(rm.commits)),
		}, "\n"),
	)
	rm.commits[c.SHA] = c

	return c.SHA
}

func objectID(kind string, payload string) string {
	sum := sha1.Sum([]byte(kind + "\x00" + payload)) //nolint:gosec

	return hex.EncodeToString(sum[:])
}
