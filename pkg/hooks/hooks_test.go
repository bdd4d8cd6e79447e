package hooks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
repos:
  - repo: https://github.com/psf/black
    rev: 23.3.0
    hooks:
      - id: black
        args: ["--line-length", "100"]
  - repo: https://github.com/pycqa/flake8
    rev: 6.0.0
    hooks:
      - id: flake8
        files: ^src/
  - repo: local
    hooks:
      - id: make-lint
        name: make lint
        language: system
ci:
  skip:
    - make-lint
  autofix_commit_msg: "[pre-commit.ci] auto fixes"
  autoupdate_schedule: weekly
`

func TestParseValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Repos, 3)
	assert.Equal(t, "https://github.com/psf/black", cfg.Repos[0].Repo)
	assert.Equal(t, "23.3.0", cfg.Repos[0].Rev)
	assert.Equal(t, []string{"--line-length", "100"}, cfg.Repos[0].Hooks[0].Args)
	assert.Equal(t, "^src/", cfg.Repos[1].Hooks[0].Files)
	assert.Equal(t, "system", cfg.Repos[2].Hooks[0].Language)

	require.NotNil(t, cfg.CI)
	assert.Equal(t, []string{"make-lint"}, cfg.CI.Skip)
	assert.Equal(t, "weekly", cfg.CI.AutoupdateSchedule)

	assert.Empty(t, cfg.Validate())
	assert.Equal(t, []string{"black", "flake8", "make-lint"}, cfg.HookIDs())
}

func TestParseToleratesUnknownKeys(t *testing.T) {
	cfg, err := Parse([]byte(`
repos:
  - repo: https://example.com/repo
    rev: v1.0.0
    future_option: true
    hooks:
      - id: check
        some_new_field: 42
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Validate())
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("repos: [unclosed"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		paths []string
	}{
		{
			name:  "empty repos",
			yaml:  `repos: []`,
			paths: []string{"repos"},
		},
		{
			name: "missing repo url",
			yaml: `
repos:
  - rev: v1.0.0
    hooks:
      - id: check
`,
			paths: []string{"repos[0].repo"},
		},
		{
			name: "missing rev",
			yaml: `
repos:
  - repo: https://example.com/repo
    hooks:
      - id: check
`,
			paths: []string{"repos[0].rev"},
		},
		{
			name: "local repo with rev",
			yaml: `
repos:
  - repo: local
    rev: v1.0.0
    hooks:
      - id: check
`,
			paths: []string{"repos[0].rev"},
		},
		{
			name: "meta repo needs no rev",
			yaml: `
repos:
  - repo: meta
    hooks:
      - id: check-useless-excludes
`,
			paths: nil,
		},
		{
			name: "empty hooks",
			yaml: `
repos:
  - repo: https://example.com/repo
    rev: v1.0.0
    hooks: []
`,
			paths: []string{"repos[0].hooks"},
		},
		{
			name: "hook without id",
			yaml: `
repos:
  - repo: https://example.com/repo
    rev: v1.0.0
    hooks:
      - name: unnamed
`,
			paths: []string{"repos[0].hooks[0].id"},
		},
		{
			name: "duplicate hook ids in one repo",
			yaml: `
repos:
  - repo: https://example.com/repo
    rev: v1.0.0
    hooks:
      - id: check
      - id: check
`,
			paths: []string{"repos[0].hooks[1].id"},
		},
		{
			name: "same hook id in different repos is fine",
			yaml: `
repos:
  - repo: https://example.com/a
    rev: v1.0.0
    hooks:
      - id: check
  - repo: https://example.com/b
    rev: v2.0.0
    hooks:
      - id: check
`,
			paths: nil,
		},
		{
			name: "ci skip references undeclared hook",
			yaml: `
repos:
  - repo: https://example.com/repo
    rev: v1.0.0
    hooks:
      - id: check
ci:
  skip:
    - missing-hook
`,
			paths: []string{"ci.skip[0]"},
		},
		{
			name: "multiple violations reported together",
			yaml: `
repos:
  - rev: v1.0.0
    hooks: []
  - repo: https://example.com/repo
    hooks:
      - id: check
      - id: check
`,
			paths: []string{
				"repos[0].repo",
				"repos[0].hooks",
				"repos[1].rev",
				"repos[1].hooks[1].id",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)

			issues := cfg.Validate()
			var got []string
			for _, issue := range issues {
				got = append(got, issue.Path)
			}
			assert.Equal(t, tt.paths, got)
		})
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(validConfig), 0o644))
	assert.NoError(t, Check(good))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("repos: []"), 0o644))
	assert.Error(t, Check(bad))

	assert.Error(t, Check(filepath.Join(dir, "missing.yaml")))
}
