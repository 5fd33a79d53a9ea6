package modifier

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/byte4ever/repo_modifier/modify/exec"
	"github.com/byte4ever/repo_modifier/modify/git"
)

// Config holds all settings for one run. The tagged fields
// can be loaded from a YAML job file with LoadConfig.
type Config struct {
	// Server is the hosting platform: github or gitlab.
	Server string `yaml:"server"`

	// Instance is the base URL of a self-hosted
	// platform. Empty means the public service.
	Instance string `yaml:"instance"`

	// Repository is the org/name of the repository.
	Repository string `yaml:"repository"`

	// Branch is the base branch files are read from.
	Branch string `yaml:"branch"`

	// Files are the repository paths to edit.
	Files []string `yaml:"files"`

	// Command is the mutator. The files are appended
	// as trailing arguments.
	Command []string `yaml:"command"`

	// Message is the commit message and pull request
	// title. Supports {VAR} placeholders.
	Message string `yaml:"message"`

	// PullRequestMessage is the pull request body.
	// Supports {VAR} placeholders.
	PullRequestMessage string `yaml:"pull_request_message"`

	// TargetBranchPrefix prefixes the fingerprint in
	// pull request branch names.
	TargetBranchPrefix string `yaml:"target_branch_prefix"`

	IgnoreMissing        bool `yaml:"ignore_missing"`
	NoDryRun             bool `yaml:"no_dry_run"`
	IgnoreWhitespaceOnly bool `yaml:"ignore_whitespace_only_changes"`
	NoPR                 bool `yaml:"no_pr"`
	CommitEmpty          bool `yaml:"commit_empty"`
	AllowDuplicates      bool `yaml:"allow_duplicates"`

	// PRLogFile receives the URL of every created pull
	// request, one per line.
	PRLogFile string `yaml:"append_pr_to_file"`

	// StampInfoFiles hold "KEY VALUE" lines usable as
	// placeholders.
	StampInfoFiles []string `yaml:"stamp_info_files"`

	// TmpDir is the parent of the workspace. Empty
	// means the system temporary directory.
	TmpDir string `yaml:"tmp_dir"`

	// Remote is the hosted repository.
	Remote git.Remote `yaml:"-"`

	// Author is the identity used for every commit.
	Author git.Author `yaml:"-"`

	// Runner runs the mutator. Defaults to
	// exec.OSRunner.
	Runner exec.Runner `yaml:"-"`

	// Out receives the diff, banners and pull request
	// URL. Defaults to os.Stdout.
	Out io.Writer `yaml:"-"`

	// Now is the clock used for duplicate branch
	// names. Defaults to time.Now.
	Now func() time.Time `yaml:"-"`
}

// LoadConfig reads a YAML job file. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	const errCtx = "loading job file"

	raw, err := os.ReadFile(path) //nolint:gosec // path from CLI flag
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", errCtx, err)
	}

	var cfg Config

	decoder := yaml.NewDecoder(
		bytes.NewReader(raw),
		yaml.DisallowUnknownField(),
	)

	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf(
			"%s: %s: %w", errCtx, path, err,
		)
	}

	return cfg, nil
}

// Validate checks required settings.
func (c Config) Validate() error {
	const errCtx = "invalid config"

	var problems []string

	if !validRepository(c.Repository) {
		problems = append(problems,
			"repository must be set as org/name",
		)
	}

	if c.Branch == "" {
		problems = append(problems, "branch must be set")
	}

	if len(c.Files) == 0 {
		problems = append(problems,
			"at least one file must be set",
		)
	}

	if len(c.Command) == 0 {
		problems = append(problems, "command must be set")
	}

	if c.Message == "" {
		problems = append(problems, "message must be set")
	}

	if !c.NoPR {
		if c.PullRequestMessage == "" {
			problems = append(problems,
				"pull request message must be set "+
					"unless pull requests are disabled",
			)
		}

		if c.TargetBranchPrefix == "" {
			problems = append(problems,
				"target branch prefix must be set "+
					"unless pull requests are disabled",
			)
		}
	}

	if c.Remote == nil {
		problems = append(problems, "remote must be set")
	}

	if len(problems) > 0 {
		return fmt.Errorf(
			"%s: %s", errCtx, strings.Join(problems, "; "),
		)
	}

	return nil
}

// SplitRepository splits org/name at the last slash, so
// nested GitLab groups stay in the owner part.
func SplitRepository(repo string) (string, string, error) {
	if !validRepository(repo) {
		return "", "", fmt.Errorf(
			"repository %q is not org/name", repo,
		)
	}

	i := strings.LastIndex(repo, "/")

	return repo[:i], repo[i+1:], nil
}

func validRepository(repo string) bool {
	i := strings.LastIndex(repo, "/")

	return i > 0 && i < len(repo)-1 &&
		!strings.HasPrefix(repo, "/")
}
