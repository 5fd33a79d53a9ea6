package modifier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/byte4ever/repo_modifier/modify/changes"
	"github.com/byte4ever/repo_modifier/modify/digester"
	"github.com/byte4ever/repo_modifier/modify/exec"
	"github.com/byte4ever/repo_modifier/modify/git"
	"github.com/byte4ever/repo_modifier/modify/planner"
	"github.com/byte4ever/repo_modifier/modify/publisher"
	"github.com/byte4ever/repo_modifier/modify/workspace"
	"github.com/byte4ever/repo_modifier/stamper"
)

// DryRunBanner is printed at the start of a dry run and
// where publishing would have happened.
const DryRunBanner = "---\nDRY RUN ACTIVE! NO PUSH WILL BE DONE\n---"

// Placeholder names available in the commit message and
// the pull request body, on top of stamp file keys.
const (
	VarFingerprint = "FINGERPRINT"
	VarBranch      = "BRANCH"
	VarBaseBranch  = "BASE_BRANCH"
	VarRepository  = "REPOSITORY"
	VarFiles       = "FILES"
)

// Run executes one edit. It returns nil when nothing
// changed, after a dry run, and after publishing.
//
//nolint:funlen // sequential workflow
func Run(ctx context.Context, cfg Config) error {
	const errCtx = "modifying repository"

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	cfg = withDefaults(cfg)

	stamps, err := stamper.LoadStamps(cfg.StampInfoFiles)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if !cfg.NoDryRun {
		printBanner(cfg.Out)
	}

	cs, err := changes.NewChangeSet(cfg.Files)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 1: Seed the workspace from the base branch.
	ws, err := workspace.New(cfg.TmpDir)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if cleanErr := ws.Clean(); cleanErr != nil {
			slog.Error(
				"failed to clean workspace",
				"error", cleanErr,
			)
		}
	}()

	before, err := ws.Fetch(
		ctx, cfg.Remote, cfg.Branch, cfg.Files,
		cfg.IgnoreMissing,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	// Step 2: Run the mutator and read the result back.
	if err := exec.Mutate(
		ctx, cfg.Runner, cfg.Command, ws.Dir, cfg.Files,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	after, err := ws.Read(cfg.Files)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	for i, path := range cfg.Files {
		if err := cs.SetBefore(path, before[i]); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		if err := cs.SetAfter(path, after[i]); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	// Step 3: Classify.
	fingerprint, err := digester.Fingerprint(cs)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info("content fingerprint", "fingerprint", fingerprint)

	if err := changes.WriteDiff(cfg.Out, cs); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if cs.WhitespaceOnly() {
		slog.Info("only whitespace changes detected")
	}

	if !cs.HasChanges(changes.Options{
		IgnoreWhitespaceOnly: cfg.IgnoreWhitespaceOnly,
		Force:                cfg.CommitEmpty,
	}) {
		slog.Info("no changes, nothing to publish")

		return nil
	}

	if !cfg.NoDryRun {
		branch := cfg.Branch
		if !cfg.NoPR {
			branch = planner.BranchName(
				cfg.TargetBranchPrefix, fingerprint,
			)
		}

		slog.Info("dry run: would publish", "branch", branch)
		printBanner(cfg.Out)

		return nil
	}

	// Step 4: Plan before touching the remote.
	pl := &planner.Planner{Checker: cfg.Remote, Now: cfg.Now}

	target, err := pl.Plan(ctx, planner.Request{
		Base:            cfg.Branch,
		Prefix:          cfg.TargetBranchPrefix,
		Fingerprint:     fingerprint,
		NoPR:            cfg.NoPR,
		AllowDuplicates: cfg.AllowDuplicates,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	vars := stampContext(cfg, stamps, fingerprint, target.Branch)
	message := stamper.Stamp(cfg.Message, vars)
	body := stamper.Stamp(cfg.PullRequestMessage, vars)

	// Step 5: Publish.
	pub := publisher.New(cfg.Remote, cfg.Author)

	built, err := pub.Commit(ctx, cfg.Branch, cs, message)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	res, err := pub.Publish(ctx, target, built, git.PullRequest{
		Title: message,
		Base:  cfg.Branch,
		Body:  body,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if res.URL == "" {
		return nil
	}

	fmt.Fprintln(cfg.Out, res.URL) //nolint:errcheck // best effort output

	if cfg.PRLogFile != "" {
		if err := appendPRLog(cfg.PRLogFile, res.URL); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return nil
}

func withDefaults(cfg Config) Config {
	if cfg.Runner == nil {
		cfg.Runner = exec.OSRunner{}
	}

	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	return cfg
}

// stampContext merges stamp file values with the values
// of this run. Run values win.
func stampContext(
	cfg Config,
	stamps map[string]any,
	fingerprint string,
	branch string,
) map[string]any {
	vars := make(map[string]any, len(stamps)+5)
	for k, v := range stamps {
		vars[k] = v
	}

	vars[VarFingerprint] = fingerprint
	vars[VarBranch] = branch
	vars[VarBaseBranch] = cfg.Branch
	vars[VarRepository] = cfg.Repository
	vars[VarFiles] = strings.Join(cfg.Files, " ")

	return vars
}

func printBanner(w io.Writer) {
	fmt.Fprintln(w, DryRunBanner) //nolint:errcheck // best effort output
}

// appendPRLog appends url to the log file, creating it
// when needed.
func appendPRLog(path string, url string) (retErr error) {
	const errCtx = "appending pull request log"

	//nolint:gosec // path from CLI flag, mode 0644 is intentional
	fi, err := os.OpenFile(
		path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if closeErr := fi.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("%s: %w", errCtx, closeErr)
		}
	}()

	if _, err := fmt.Fprintln(fi, url); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}
