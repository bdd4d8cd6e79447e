// Package changelog assembles release notes from per-change fragment files.
// A fragment is a small markdown file named <pr-number>.<kind>.md whose body
// is the entry text. Fragments are grouped into Features, Improvements and
// Bug Fixes sections when a release is rendered.
package changelog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/vortexdata/ferry/pkg/errors"
	"github.com/vortexdata/ferry/pkg/logger"
)

// Kind classifies a fragment into its release section.
type Kind string

const (
	KindFeature     Kind = "feature"
	KindImprovement Kind = "improvement"
	KindBugfix      Kind = "bugfix"
)

// section headings in render order
var kindOrder = []struct {
	kind    Kind
	heading string
}{
	{KindFeature, "Features"},
	{KindImprovement, "Improvements"},
	{KindBugfix, "Bug Fixes"},
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindFeature, KindImprovement, KindBugfix:
		return Kind(s), nil
	}
	return "", errors.Newf(errors.ErrorTypeValidation,
		"unknown fragment kind %q (want feature, improvement or bugfix)", s)
}

// Fragment is one changelog entry awaiting release.
type Fragment struct {
	PR   int
	Kind Kind
	Text string
}

// ParseFragment parses a fragment from its file name and body. The name must
// follow <pr-number>.<kind>.md; files not matching that shape are rejected
// with a validation error.
func ParseFragment(name string, data []byte) (*Fragment, error) {
	base := strings.TrimSuffix(name, ".md")
	if base == name {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"fragment %q must have a .md extension", name)
	}

	parts := strings.SplitN(base, ".", 2)
	if len(parts) != 2 {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"fragment %q must be named <pr-number>.<kind>.md", name)
	}

	pr, err := strconv.Atoi(parts[0])
	if err != nil || pr <= 0 {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"fragment %q has invalid PR number %q", name, parts[0])
	}

	kind, err := ParseKind(parts[1])
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeValidation,
			"fragment %q has invalid kind", name)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"fragment %q has an empty body", name)
	}
	if strings.Contains(text, "\n\n") {
		return nil, errors.Newf(errors.ErrorTypeValidation,
			"fragment %q body must be a single paragraph", name)
	}

	return &Fragment{PR: pr, Kind: kind, Text: text}, nil
}

// Collect gathers fragments from a directory. Files without a .md extension
// and markdown files whose names do not split into two dotted parts are
// skipped; malformed fragments and duplicate (pr, kind) pairs are errors.
func Collect(dir string) ([]*Fragment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFile, "cannot read fragment directory %q", dir)
	}

	var fragments []*Fragment
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !isFragmentName(entry.Name()) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeFile, "cannot read fragment %q", entry.Name())
		}

		frag, err := ParseFragment(entry.Name(), data)
		if err != nil {
			return nil, err
		}

		key := fmt.Sprintf("%d.%s", frag.PR, frag.Kind)
		if prev, dup := seen[key]; dup {
			return nil, errors.Newf(errors.ErrorTypeValidation,
				"duplicate fragment for PR %d kind %s (%q and %q)", frag.PR, frag.Kind, prev, entry.Name())
		}
		seen[key] = entry.Name()
		fragments = append(fragments, frag)
	}

	if len(fragments) == 0 {
		logger.Get().Warn("no changelog fragments found", zap.String("dir", dir))
	}
	return fragments, nil
}

// Check lints every fragment in a directory, returning all problems found.
func Check(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "cannot read fragment directory %q", dir)
	}

	var problems []string
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !isFragmentName(entry.Name()) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}

		frag, err := ParseFragment(entry.Name(), data)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}

		key := fmt.Sprintf("%d.%s", frag.PR, frag.Kind)
		if prev, dup := seen[key]; dup {
			problems = append(problems, fmt.Sprintf(
				"duplicate fragment for PR %d kind %s (%q and %q)", frag.PR, frag.Kind, prev, entry.Name()))
			continue
		}
		seen[key] = entry.Name()
	}

	if len(problems) > 0 {
		e := errors.Newf(errors.ErrorTypeValidation,
			"%d problem(s) in changelog fragments", len(problems))
		for i, p := range problems {
			e = e.WithDetail(strconv.Itoa(i+1), p)
		}
		return e
	}
	return nil
}

// isFragmentName reports whether a file name has the <something>.<kind>.md
// shape worth attempting to parse. README.md and similar are skipped.
func isFragmentName(name string) bool {
	if !strings.HasSuffix(name, ".md") {
		return false
	}
	return strings.Count(strings.TrimSuffix(name, ".md"), ".") == 1
}

// Release is a version's worth of fragments ready to render.
type Release struct {
	Version   string
	Date      string
	Fragments []*Fragment
}

// Render produces the markdown section for the release. Sections appear in
// fixed order (Features, Improvements, Bug Fixes), empty sections are
// omitted, and bullets within a section are sorted by PR number with the PR
// reference appended.
func (r *Release) Render() string {
	var b strings.Builder

	b.WriteString("## ")
	b.WriteString(r.Version)
	if r.Date != "" {
		b.WriteString(" (")
		b.WriteString(r.Date)
		b.WriteString(")")
	}
	b.WriteString("\n")

	grouped := make(map[Kind][]*Fragment, len(kindOrder))
	for _, frag := range r.Fragments {
		grouped[frag.Kind] = append(grouped[frag.Kind], frag)
	}

	for _, section := range kindOrder {
		frags := grouped[section.kind]
		if len(frags) == 0 {
			continue
		}
		sort.Slice(frags, func(i, j int) bool { return frags[i].PR < frags[j].PR })

		b.WriteString("\n### ")
		b.WriteString(section.heading)
		b.WriteString("\n\n")
		for _, frag := range frags {
			b.WriteString("- ")
			b.WriteString(strings.Join(strings.Fields(frag.Text), " "))
			fmt.Fprintf(&b, " (#%d)\n", frag.PR)
		}
	}
	return b.String()
}

// RenderTo writes the rendered release into the named file, prepending it to
// any existing content so the newest release stays on top.
func (r *Release) RenderTo(path string) error {
	rendered := r.Render()

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, errors.ErrorTypeFile, "cannot read %q", path)
	}

	content := rendered
	if len(existing) > 0 {
		content = rendered + "\n" + string(existing)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "cannot write %q", path)
	}
	return nil
}
