// Package hooks models the hook-pipeline configuration file and validates
// its well-formedness. The file declares external hook repositories with
// revision pins and the hooks to run from each, plus an optional ci block
// tuning the hosted CI run. This package checks the declaration, it does not
// execute hooks.
package hooks

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vortexdata/ferry/pkg/errors"
)

// Repo URLs with special meaning: hooks defined in the repository itself or
// built into the runner. Neither carries a revision pin.
const (
	RepoLocal = "local"
	RepoMeta  = "meta"
)

// Config is the top-level hook-pipeline configuration.
type Config struct {
	Repos []Repo `yaml:"repos"`
	CI    *CI    `yaml:"ci"`
}

// Repo declares one hook repository and the hooks to run from it.
type Repo struct {
	Repo  string `yaml:"repo"`
	Rev   string `yaml:"rev"`
	Hooks []Hook `yaml:"hooks"`
}

// Hook declares a single hook. Only ID is required; the rest override the
// hook's defaults.
type Hook struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Args     []string `yaml:"args"`
	Files    string   `yaml:"files"`
	Language string   `yaml:"language"`
	Stages   []string `yaml:"stages"`
}

// CI tunes the hosted CI run of the pipeline.
type CI struct {
	Skip               []string `yaml:"skip"`
	AutofixCommitMsg   string   `yaml:"autofix_commit_msg"`
	AutoupdateSchedule string   `yaml:"autoupdate_schedule"`
}

// Issue is a single validation finding. Path locates the offending element
// in the document.
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	return i.Path + ": " + i.Message
}

// Load reads and parses a hook-pipeline configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "cannot read %q", path)
	}
	return Parse(data)
}

// Parse parses a hook-pipeline configuration document. Unknown keys are
// tolerated for forward compatibility.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid hook configuration YAML")
	}
	return &cfg, nil
}

// Validate checks well-formedness and returns every violation found, not
// just the first.
func (c *Config) Validate() []Issue {
	var issues []Issue
	add := func(path, format string, args ...interface{}) {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if len(c.Repos) == 0 {
		add("repos", "at least one repo entry is required")
	}

	declared := make(map[string]bool)
	for i, repo := range c.Repos {
		path := fmt.Sprintf("repos[%d]", i)

		if repo.Repo == "" {
			add(path+".repo", "repo is required")
		}

		switch repo.Repo {
		case RepoLocal, RepoMeta:
			if repo.Rev != "" {
				add(path+".rev", "%s repos carry no rev", repo.Repo)
			}
		default:
			if repo.Rev == "" {
				add(path+".rev", "rev is required")
			}
		}

		if len(repo.Hooks) == 0 {
			add(path+".hooks", "at least one hook is required")
		}

		seen := make(map[string]bool, len(repo.Hooks))
		for j, hook := range repo.Hooks {
			hookPath := fmt.Sprintf("%s.hooks[%d]", path, j)
			if hook.ID == "" {
				add(hookPath+".id", "id is required")
				continue
			}
			if seen[hook.ID] {
				add(hookPath+".id", "duplicate hook id %q", hook.ID)
			}
			seen[hook.ID] = true
			declared[hook.ID] = true
		}
	}

	if c.CI != nil {
		for i, id := range c.CI.Skip {
			if !declared[id] {
				add(fmt.Sprintf("ci.skip[%d]", i), "skip references undeclared hook %q", id)
			}
		}
	}
	return issues
}

// Check loads and validates a configuration file, returning a single
// validation error listing every issue, or nil when the file is well formed.
func Check(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	issues := cfg.Validate()
	if len(issues) == 0 {
		return nil
	}
	e := errors.Newf(errors.ErrorTypeValidation,
		"%d issue(s) in hook configuration", len(issues))
	for _, issue := range issues {
		e = e.WithDetail(issue.Path, issue.Message)
	}
	return e
}

// HookIDs returns every declared hook id in document order.
func (c *Config) HookIDs() []string {
	var ids []string
	for _, repo := range c.Repos {
		for _, hook := range repo.Hooks {
			if hook.ID != "" {
				ids = append(ids, hook.ID)
			}
		}
	}
	return ids
}
