package gitlab_test

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/repo_modifier/modify/git"
	glprov "github.com/byte4ever/repo_modifier/modify/git/gitlab"
)

func TestNewProvider_valid(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		Repo:        "org/project",
		AccessToken: "tok",
	})

	require.NoError(t, err)
	assert.NotNil(t, pv)
}

func TestNewProvider_custom_host(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		Host:        "https://gl.corp.example.com",
		Repo:        "org/project",
		AccessToken: "tok",
	})

	require.NoError(t, err)
	assert.NotNil(t, pv)
}

func TestNewProvider_missing_token(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		Repo: "org/project",
	})

	assert.Nil(t, pv)
	assert.ErrorContains(t, err, "access token")
}

func TestNewProvider_missing_repo(t *testing.T) {
	t.Parallel()

	pv, err := glprov.NewProvider(glprov.Config{
		AccessToken: "tok",
	})

	assert.Nil(t, pv)
	assert.ErrorContains(t, err, "repo must be set")
}

// fakeGitLab records write requests and serves a tiny
// project with a single file "a.txt" on "main". Like
// GitLab, it rejects an update action whose
// last_commit_id is not the file's current one.
type fakeGitLab struct {
	mu         sync.Mutex
	head       string
	fileCommit string
	commits    []map[string]any
	branches   []map[string]any
	deletes    []string
}

// moveHead simulates a concurrent push to main touching
// a.txt.
func (f *fakeGitLab) moveHead(head string, fileCommit string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.head = head
	f.fileCommit = fileCommit
}

func (f *fakeGitLab) staleUpdate(body map[string]any) bool {
	actions, _ := body["actions"].([]any)

	for _, a := range actions {
		action, _ := a.(map[string]any)
		if action["action"] == "update" &&
			action["last_commit_id"] != f.fileCommit {
			return true
		}
	}

	return false
}

func (f *fakeGitLab) ServeHTTP(
	w http.ResponseWriter,
	r *http.Request,
) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet &&
		strings.Contains(path, "/repository/files/"):
		name := path[strings.Index(path, "/repository/files/")+
			len("/repository/files/"):]
		if name != "a.txt" {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"message": "404 File Not Found",
			})

			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"file_name":      "a.txt",
			"file_path":      "a.txt",
			"encoding":       "base64",
			"content":        base64.StdEncoding.EncodeToString([]byte("old\n")),
			"last_commit_id": f.fileCommit,
		})

	case r.Method == http.MethodDelete &&
		strings.Contains(path, "/repository/files/"):
		f.deletes = append(f.deletes, path)
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodGet &&
		strings.Contains(path, "/repository/branches/"):
		if !strings.HasSuffix(path, "/branches/main") {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"message": "404 Branch Not Found",
			})

			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"name":   "main",
			"commit": map[string]any{"id": f.head},
		})

	case r.Method == http.MethodPost &&
		strings.HasSuffix(path, "/repository/branches"):
		f.branches = append(f.branches, readBody(r))
		writeJSON(w, http.StatusCreated, map[string]any{
			"name": "new",
		})

	case r.Method == http.MethodPost &&
		strings.HasSuffix(path, "/repository/commits"):
		body := readBody(r)
		if f.staleUpdate(body) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"message": "A file with this name has been changed",
			})

			return
		}

		f.commits = append(f.commits, body)
		writeJSON(w, http.StatusCreated, map[string]any{
			"id": "c2",
		})

	case r.Method == http.MethodPost &&
		strings.HasSuffix(path, "/merge_requests"):
		writeJSON(w, http.StatusCreated, map[string]any{
			"iid":     3,
			"web_url": "https://gitlab.example.com/org/project/-/merge_requests/3",
		})

	default:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"message": "404 Not Found",
		})
	}
}

func readBody(r *http.Request) map[string]any {
	raw, _ := io.ReadAll(r.Body) //nolint:errcheck

	var body map[string]any
	_ = json.Unmarshal(raw, &body) //nolint:errcheck

	return body
}

func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func newTestProvider(
	t *testing.T,
) (*glprov.Provider, *fakeGitLab) {
	t.Helper()

	fake := &fakeGitLab{head: "head1", fileCommit: "lc1"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	pv, err := glprov.NewProvider(glprov.Config{
		Host:        srv.URL,
		Repo:        "org/project",
		AccessToken: "tok",
	})
	require.NoError(t, err)

	return pv, fake
}

func TestProvider_GetFile(t *testing.T) {
	t.Parallel()

	pv, _ := newTestProvider(t)
	ctx := context.Background()

	got, err := pv.GetFile(ctx, "a.txt", "main")
	require.NoError(t, err)
	assert.Equal(t, "old\n", got.Content)
	assert.Equal(t, "lc1", got.SHA)

	_, err = pv.GetFile(ctx, "b.txt", "main")
	assert.ErrorIs(t, err, git.ErrNotFound)
}

func TestProvider_BranchExists(t *testing.T) {
	t.Parallel()

	pv, _ := newTestProvider(t)
	ctx := context.Background()

	ok, err := pv.BranchExists(ctx, "main")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = pv.BranchExists(ctx, "feature-abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProvider_staged_commit_on_new_branch(t *testing.T) {
	t.Parallel()

	pv, fake := newTestProvider(t)
	ctx := context.Background()

	head, err := pv.BranchHead(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "head1", head.CommitSHA)

	b1, err := pv.CreateBlob(ctx, "new\n")
	require.NoError(t, err)

	b2, err := pv.CreateBlob(ctx, "created\n")
	require.NoError(t, err)

	tree, err := pv.CreateTree(ctx, head.TreeSHA, []git.TreeEntry{
		{Path: "a.txt", Mode: git.DefaultFileMode, BlobSHA: b1},
		{Path: "b.txt", Mode: git.DefaultFileMode, BlobSHA: b2},
	})
	require.NoError(t, err)

	sha, err := pv.CreateCommit(ctx, git.Commit{
		Message: "bump",
		Tree:    tree,
		Parent:  head.CommitSHA,
		Author:  git.Author{Name: "Bot", Email: "bot@example.com"},
	})
	require.NoError(t, err)

	assert.Empty(t, fake.commits, "staging must not call the API")

	require.NoError(t, pv.CreateRef(ctx, "feature-abc", sha))
	require.Len(t, fake.commits, 1)

	body := fake.commits[0]
	assert.Equal(t, "feature-abc", body["branch"])
	assert.Equal(t, "head1", body["start_sha"])
	assert.Equal(t, "bump", body["commit_message"])
	assert.Equal(t, "Bot", body["author_name"])

	actions, ok := body["actions"].([]any)
	require.True(t, ok)
	require.Len(t, actions, 2)

	first, ok := actions[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "update", first["action"])
	assert.Equal(t, "a.txt", first["file_path"])
	assert.Equal(t, "new\n", first["content"])
	assert.Equal(t, "lc1", first["last_commit_id"])

	second, ok := actions[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "create", second["action"])
	assert.NotContains(t, second, "last_commit_id")
}

// stageEdit stages a commit on top of main replacing
// a.txt.
func stageEdit(
	t *testing.T,
	pv *glprov.Provider,
) string {
	t.Helper()

	ctx := context.Background()

	head, err := pv.BranchHead(ctx, "main")
	require.NoError(t, err)

	blob, err := pv.CreateBlob(ctx, "new\n")
	require.NoError(t, err)

	tree, err := pv.CreateTree(ctx, head.TreeSHA, []git.TreeEntry{
		{Path: "a.txt", Mode: git.DefaultFileMode, BlobSHA: blob},
	})
	require.NoError(t, err)

	sha, err := pv.CreateCommit(ctx, git.Commit{
		Message: "bump",
		Tree:    tree,
		Parent:  head.CommitSHA,
	})
	require.NoError(t, err)

	return sha
}

func TestProvider_UpdateRef_pushes_onto_branch(t *testing.T) {
	t.Parallel()

	pv, fake := newTestProvider(t)
	sha := stageEdit(t, pv)

	require.NoError(t, pv.UpdateRef(context.Background(), "main", sha))

	require.Len(t, fake.commits, 1)
	body := fake.commits[0]
	assert.Equal(t, "main", body["branch"])
	assert.NotContains(t, body, "start_sha")

	actions, ok := body["actions"].([]any)
	require.True(t, ok)
	require.Len(t, actions, 1)

	first, ok := actions[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "lc1", first["last_commit_id"])
}

func TestProvider_UpdateRef_refuses_moved_branch(t *testing.T) {
	t.Parallel()

	pv, fake := newTestProvider(t)
	sha := stageEdit(t, pv)

	fake.moveHead("head2", "lc2")

	err := pv.UpdateRef(context.Background(), "main", sha)

	assert.ErrorContains(t, err, "branch moved to head2, expected head1")
	assert.Empty(t, fake.commits)
}

func TestProvider_UpdateRef_rejects_stale_file(t *testing.T) {
	t.Parallel()

	pv, fake := newTestProvider(t)
	sha := stageEdit(t, pv)

	// a.txt changes while the branch head reads the same,
	// as when a push lands between the check and the
	// commit.
	fake.moveHead("head1", "lc2")

	err := pv.UpdateRef(context.Background(), "main", sha)

	require.Error(t, err)
	assert.ErrorContains(t, err, "has been changed")
	assert.Empty(t, fake.commits)
}

func TestProvider_UpdateRef_empty_commit(t *testing.T) {
	t.Parallel()

	pv, fake := newTestProvider(t)
	ctx := context.Background()

	sha, err := pv.CreateCommit(ctx, git.Commit{
		Message: "forced",
		Tree:    "head1",
		Parent:  "head1",
	})
	require.NoError(t, err)

	err = pv.UpdateRef(ctx, "main", sha)

	assert.ErrorIs(t, err, git.ErrEmptyCommit)
	assert.Empty(t, fake.commits)
}

func TestProvider_identity_tree_creates_branch_at_parent(t *testing.T) {
	t.Parallel()

	pv, fake := newTestProvider(t)
	ctx := context.Background()

	sha, err := pv.CreateCommit(ctx, git.Commit{
		Message: "deletions only",
		Tree:    "head1",
		Parent:  "head1",
	})
	require.NoError(t, err)

	require.NoError(t, pv.CreateRef(ctx, "feature-abc", sha))

	assert.Empty(t, fake.commits)
	require.Len(t, fake.branches, 1)
	assert.Equal(t, "feature-abc", fake.branches[0]["branch"])
	assert.Equal(t, "head1", fake.branches[0]["ref"])
}

func TestProvider_UpdateRef_unknown_commit(t *testing.T) {
	t.Parallel()

	pv, _ := newTestProvider(t)

	err := pv.UpdateRef(context.Background(), "main", "deadbeef")

	assert.ErrorContains(t, err, "was not staged")
}

func TestProvider_DeleteFile_and_merge_request(t *testing.T) {
	t.Parallel()

	pv, fake := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, pv.DeleteFile(ctx, git.DeleteRequest{
		Path:    "a.txt",
		Branch:  "feature-abc",
		SHA:     "lc1",
		Message: "removed file a.txt",
	}))
	assert.Len(t, fake.deletes, 1)

	url, err := pv.CreatePullRequest(ctx, git.PullRequest{
		Title: "bump",
		Head:  "feature-abc",
		Base:  "main",
		Body:  "please merge",
	})
	require.NoError(t, err)
	assert.Equal(
		t,
		"https://gitlab.example.com/org/project/-/merge_requests/3",
		url,
	)
}
