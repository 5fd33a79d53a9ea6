// Command modify_repository runs an editing command on a
// fixed set of files of a hosted repository and publishes
// the result as a commit or a pull request, without
// cloning the repository.
//
//	modify_repository -r org/repo -b main -f VERSION \
//	  -m "bump version" -p "automated bump" -t bump \
//	  -n -- sed -i s/1.0/1.1/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/byte4ever/repo_modifier/modify/git"
	"github.com/byte4ever/repo_modifier/modify/git/github"
	"github.com/byte4ever/repo_modifier/modify/git/gitlab"
	"github.com/byte4ever/repo_modifier/modify/modifier"
)

// UnknownEmail is used when the account exposes no email.
const UnknownEmail = "unknown@unknown.com"

// tokenEnv maps servers to the variable holding their
// access token.
var tokenEnv = map[string]string{
	"github": "GITHUB_ACCESS_TOKEN",
	"gitlab": "GITLAB_ACCESS_TOKEN",
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	cmd := newRootCommand(deps{
		getenv:    os.Getenv,
		newRemote: newRemote,
		modify:    modifier.Run,
	})
	cmd.SetArgs(args)

	return cmd.ExecuteContext(ctx)
}

// deps are the collaborators of the root command.
type deps struct {
	getenv    func(string) string
	newRemote func(server, instance, repository, token string) (git.Remote, error)
	modify    func(context.Context, modifier.Config) error
}

// flagValues receives the parsed flags. Only flags set on
// the command line override the job file.
type flagValues struct {
	config             string
	server             string
	instance           string
	repository         string
	branch             string
	files              []string
	message            string
	pullRequestMessage string
	targetBranchPrefix string
	prLogFile          string
	tmpDir             string
	stampInfoFiles     []string

	ignoreMissing        bool
	noDryRun             bool
	ignoreWhitespaceOnly bool
	noPR                 bool
	commitEmpty          bool
	allowDuplicates      bool
}

func newRootCommand(d deps) *cobra.Command {
	var fv flagValues

	cmd := &cobra.Command{
		Use:   "modify_repository [flags] command [args...]",
		Short: "Edit files of a hosted repository and publish the result",
		Long: `modify_repository fetches the given files from the base branch into a
temporary directory, runs the command with the file paths appended, and
prints the resulting diff. With --no-dry-run the change is committed
directly (--no-pr) or proposed in a pull request from a branch named
after the content, so running the same edit twice is detected.

The access token is read from GITHUB_ACCESS_TOKEN or GITLAB_ACCESS_TOKEN.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, args, fv, d)
		},
	}

	fs := cmd.Flags()
	fs.SetInterspersed(false)

	fs.StringVar(&fv.config, "config", "",
		"YAML job file; flags given on the command line override it")
	fs.StringVar(&fv.server, "server", "github",
		"hosting platform: github or gitlab")
	fs.StringVarP(&fv.instance, "github-instance", "g", "",
		"base URL of a GitHub Enterprise or self-hosted GitLab instance")
	fs.StringVarP(&fv.repository, "repository", "r", "",
		"repository as org/name")
	fs.StringVarP(&fv.branch, "branch", "b", "",
		"base branch")
	fs.StringArrayVarP(&fv.files, "file", "f", nil,
		"file to edit (repeatable)")
	fs.StringVarP(&fv.message, "message", "m", "",
		"commit message, also the pull request title")
	fs.BoolVarP(&fv.ignoreMissing, "ignore-missing", "i", false,
		"start missing files empty instead of failing")
	fs.StringVarP(&fv.pullRequestMessage, "pull-request-message", "p", "",
		"pull request body (required unless --no-pr)")
	fs.StringVarP(&fv.targetBranchPrefix, "target-branch-prefix", "t", "",
		"prefix of the pull request branch (required unless --no-pr)")
	fs.BoolVarP(&fv.noDryRun, "no-dry-run", "n", false,
		"publish the change")
	fs.BoolVarP(&fv.ignoreWhitespaceOnly, "ignore-whitespace-only-changes", "w", false,
		"treat whitespace-only changes as no change")
	fs.BoolVar(&fv.noPR, "no-pr", false,
		"commit directly on the base branch")
	fs.BoolVar(&fv.commitEmpty, "commit-empty", false,
		"commit even when nothing changed")
	fs.BoolVar(&fv.allowDuplicates, "allow-duplicates", false,
		"use a timestamped branch when the change was already proposed")
	fs.StringVar(&fv.prLogFile, "append-pr-to-file", "",
		"append the pull request URL to this file")
	fs.StringArrayVar(&fv.stampInfoFiles, "stamp-info-file", nil,
		"file of KEY VALUE lines usable as {KEY} in messages (repeatable)")
	fs.StringVar(&fv.tmpDir, "tmp-dir", "",
		"parent directory of the workspace")

	return cmd
}

func execute(
	cmd *cobra.Command,
	args []string,
	fv flagValues,
	d deps,
) error {
	const errCtx = "running modify_repository"

	ctx := cmd.Context()

	var cfg modifier.Config

	if fv.config != "" {
		loaded, err := modifier.LoadConfig(fv.config)
		if err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		cfg = loaded
	}

	applyFlags(cmd.Flags(), fv, &cfg)

	if len(args) > 0 {
		cfg.Command = args
	}

	if cfg.Server == "" {
		cfg.Server = "github"
	}

	env, ok := tokenEnv[cfg.Server]
	if !ok {
		return fmt.Errorf(
			"%s: unknown server %q", errCtx, cfg.Server,
		)
	}

	token := d.getenv(env)
	if token == "" {
		return fmt.Errorf(
			"%s: environment variable %s must be set",
			errCtx, env,
		)
	}

	remote, err := d.newRemote(
		cfg.Server, cfg.Instance, cfg.Repository, token,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	cfg.Remote = remote
	cfg.Out = cmd.OutOrStdout()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	cfg.Author, err = resolveIdentity(ctx, remote)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"committing as",
		"name", cfg.Author.Name,
		"email", cfg.Author.Email,
	)

	if err := d.modify(ctx, cfg); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// applyFlags copies the flags set on the command line into
// cfg.
func applyFlags(
	fs *pflag.FlagSet,
	fv flagValues,
	cfg *modifier.Config,
) {
	strs := map[string]struct {
		dst *string
		val string
	}{
		"server":               {&cfg.Server, fv.server},
		"github-instance":      {&cfg.Instance, fv.instance},
		"repository":           {&cfg.Repository, fv.repository},
		"branch":               {&cfg.Branch, fv.branch},
		"message":              {&cfg.Message, fv.message},
		"pull-request-message": {&cfg.PullRequestMessage, fv.pullRequestMessage},
		"target-branch-prefix": {&cfg.TargetBranchPrefix, fv.targetBranchPrefix},
		"append-pr-to-file":    {&cfg.PRLogFile, fv.prLogFile},
		"tmp-dir":              {&cfg.TmpDir, fv.tmpDir},
	}

	for name, s := range strs {
		if fs.Changed(name) {
			*s.dst = s.val
		}
	}

	bools := map[string]struct {
		dst *bool
		val bool
	}{
		"ignore-missing":                 {&cfg.IgnoreMissing, fv.ignoreMissing},
		"no-dry-run":                     {&cfg.NoDryRun, fv.noDryRun},
		"ignore-whitespace-only-changes": {&cfg.IgnoreWhitespaceOnly, fv.ignoreWhitespaceOnly},
		"no-pr":                          {&cfg.NoPR, fv.noPR},
		"commit-empty":                   {&cfg.CommitEmpty, fv.commitEmpty},
		"allow-duplicates":               {&cfg.AllowDuplicates, fv.allowDuplicates},
	}

	for name, b := range bools {
		if fs.Changed(name) {
			*b.dst = b.val
		}
	}

	if fs.Changed("file") {
		cfg.Files = fv.files
	}

	if fs.Changed("stamp-info-file") {
		cfg.StampInfoFiles = fv.stampInfoFiles
	}
}

// resolveIdentity returns the account the remote is
// authenticated as. A missing name is fatal; a missing
// email falls back to UnknownEmail.
func resolveIdentity(
	ctx context.Context,
	remote git.Remote,
) (git.Author, error) {
	const errCtx = "resolving identity"

	author, err := remote.Identity(ctx)
	if err != nil {
		return git.Author{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	if author.Name == "" {
		return git.Author{}, fmt.Errorf(
			"%s: account has no name, set one in the profile",
			errCtx,
		)
	}

	if author.Email == "" {
		author.Email = UnknownEmail
	}

	return author, nil
}

// newRemote creates a git.Remote for the server. Pattern:
// Factory -- selects platform implementation at runtime.
func newRemote(
	server string,
	instance string,
	repository string,
	token string,
) (git.Remote, error) {
	const errCtx = "creating remote"

	switch server {
	case "github":
		owner, name, err := modifier.SplitRepository(repository)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		p, err := github.NewProvider(github.Config{
			RepoOwner:   owner,
			Repo:        name,
			AccessToken: token,
			InstanceURL: instance,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	case "gitlab":
		p, err := gitlab.NewProvider(gitlab.Config{
			Host:        instance,
			Repo:        repository,
			AccessToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

		return p, nil

	default:
		return nil, fmt.Errorf(
			"%s: unknown server %q", errCtx, server,
		)
	}
}
