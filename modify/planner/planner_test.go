package planner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/repo_modifier/modify/git/gittest"
	"github.com/byte4ever/repo_modifier/modify/planner"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
}

func TestBranchName(t *testing.T) {
	t.Parallel()

	assert.Equal(
		t, "bump-0123abcd",
		planner.BranchName("bump", "0123abcd"),
	)
}

func TestPlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		branches []string
		req      planner.Request
		want     planner.Target
		wantDup  string
		queries  int
	}{
		{
			name:     "no pr commits on base",
			branches: []string{"bump-fp"},
			req: planner.Request{
				Base: "main", Prefix: "bump",
				Fingerprint: "fp", NoPR: true,
			},
			want: planner.Target{
				Branch: "main",
				Mode:   planner.DirectCommit,
			},
			queries: 0,
		},
		{
			name: "fresh fingerprint branch",
			req: planner.Request{
				Base: "main", Prefix: "bump", Fingerprint: "fp",
			},
			want: planner.Target{
				Branch: "bump-fp",
				Mode:   planner.PullRequest,
			},
			queries: 1,
		},
		{
			name:     "duplicate rejected",
			branches: []string{"bump-fp"},
			req: planner.Request{
				Base: "main", Prefix: "bump", Fingerprint: "fp",
			},
			wantDup: "bump-fp",
			queries: 1,
		},
		{
			name:     "duplicate allowed gets timestamp",
			branches: []string{"bump-fp"},
			req: planner.Request{
				Base: "main", Prefix: "bump", Fingerprint: "fp",
				AllowDuplicates: true,
			},
			want: planner.Target{
				Branch:   "main-20240309140507",
				Existing: true,
				Mode:     planner.PullRequest,
			},
			queries: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rm := gittest.New("main", nil)
			for _, br := range tt.branches {
				head, err := rm.BranchHead(context.Background(), "main")
				require.NoError(t, err)
				require.NoError(t, rm.CreateRef(
					context.Background(), br, head.CommitSHA,
				))
			}

			before := len(rm.Calls())

			pl := &planner.Planner{Checker: rm, Now: fixedClock}
			got, err := pl.Plan(context.Background(), tt.req)

			assert.Len(t, rm.Calls()[before:], tt.queries)

			if tt.wantDup != "" {
				var dup *planner.DuplicateChangeError
				require.ErrorAs(t, err, &dup)
				assert.Equal(t, tt.wantDup, dup.Branch)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlan_remote_error(t *testing.T) {
	t.Parallel()

	rm := gittest.New("main", nil)
	rm.FailOn["BranchExists"] = errors.New("unreachable")

	pl := &planner.Planner{Checker: rm}
	_, err := pl.Plan(context.Background(), planner.Request{
		Base: "main", Prefix: "p", Fingerprint: "f",
	})

	require.ErrorContains(t, err, "unreachable")

	var dup *planner.DuplicateChangeError
	assert.False(t, errors.As(err, &dup))
}

func TestPlan_default_clock(t *testing.T) {
	t.Parallel()

	rm := gittest.New("main", nil)
	head, err := rm.BranchHead(context.Background(), "main")
	require.NoError(t, err)
	require.NoError(t, rm.CreateRef(
		context.Background(), "p-f", head.CommitSHA,
	))

	pl := &planner.Planner{Checker: rm}
	got, err := pl.Plan(context.Background(), planner.Request{
		Base: "main", Prefix: "p", Fingerprint: "f",
		AllowDuplicates: true,
	})

	require.NoError(t, err)
	assert.Regexp(t, `^main-\d{14}$`, got.Branch)
}

func TestMode_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "direct-commit", planner.DirectCommit.String())
	assert.Equal(t, "pull-request", planner.PullRequest.String())
}
