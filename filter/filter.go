// Package filter implements the notification engine's Filter Engine
// (spec §4.D): a pure, data-driven decision of whether an event's
// path(s) should be suppressed before reaching a consumer.
//
// Filter is intentionally independent of the engine's Event type - spec
// §9 frames filter extension as supplying different rule sets, not
// subclassing behavior, so Filter only ever deals in plain paths.
package filter

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Filter holds the three ordered rule sets of §4.D: ignored directory
// names, ignored filename patterns, and ignored path prefixes.
type Filter struct {
	dirs     map[string]struct{}
	patterns []*regexp.Regexp
	prefixes [][]string // each prefix, pre-split into components
}

// New builds a Filter from the given rule sets. Patterns that fail to
// compile are dropped; callers that need to know about a bad pattern
// should use Compile instead.
func New(dirs []string, patterns []string, prefixes []string) *Filter {
	f := &Filter{dirs: make(map[string]struct{}, len(dirs))}
	for _, d := range dirs {
		f.dirs[d] = struct{}{}
	}
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			f.patterns = append(f.patterns, re)
		}
	}
	for _, p := range prefixes {
		f.prefixes = append(f.prefixes, splitPath(p))
	}
	return f
}

// Compile is like New but reports the first pattern compile error.
func Compile(dirs []string, patterns []string, prefixes []string) (*Filter, error) {
	f := &Filter{dirs: make(map[string]struct{}, len(dirs))}
	for _, d := range dirs {
		f.dirs[d] = struct{}{}
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		f.patterns = append(f.patterns, re)
	}
	for _, p := range prefixes {
		f.prefixes = append(f.prefixes, splitPath(p))
	}
	return f, nil
}

// MatchesPath reports whether any of the three rules matches path:
// an ignored directory name as an exact path component, an ignored
// filename pattern against the basename, or an ignored prefix
// compared component-wise.
func (f *Filter) MatchesPath(path string) bool {
	if f == nil {
		return false
	}
	components := splitPath(path)
	for _, c := range components {
		if _, ignored := f.dirs[c]; ignored {
			return true
		}
	}

	base := filepath.Base(path)
	for _, re := range f.patterns {
		if re.MatchString(base) {
			return true
		}
	}

	for _, prefix := range f.prefixes {
		if hasComponentPrefix(components, prefix) {
			return true
		}
	}
	return false
}

// ShouldSuppress reports whether an event carrying these paths should
// be dropped. A single-path event is suppressed if that path matches;
// a Rename (two paths) is suppressed only if both old and new path
// match, per §4.D.
func (f *Filter) ShouldSuppress(paths ...string) bool {
	if f == nil || len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		if !f.MatchesPath(p) {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	clean := filepath.Clean(path)
	clean = strings.TrimPrefix(clean, string(filepath.Separator))
	if clean == "" || clean == "." {
		return nil
	}
	return strings.Split(clean, string(filepath.Separator))
}

func hasComponentPrefix(path, prefix []string) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i, c := range prefix {
		if path[i] != c {
			return false
		}
	}
	return true
}

// CommonIgnoreDirs is the default set of directory names suppressed
// by Common: transient caches and version-control metadata.
var CommonIgnoreDirs = []string{
	"__pycache__", ".git", ".hg", ".svn", ".tox", ".venv",
	"site-packages", ".idea", "node_modules", ".mypy_cache",
	".ruff_cache", ".pytest_cache", ".hypothesis",
}

// CommonIgnorePatterns is the default set of filename patterns
// suppressed by Common: editor swap/backup files and OS metadata.
var CommonIgnorePatterns = []string{
	`\.py[cod]$`,
	`\.___jb_.*___$`,
	`\.sw.$`,
	`~$`,
	`^\.\#`,
	`^\.DS_Store$`,
	`^flycheck_`,
}

// Common returns the default filter preset covering transient caches
// and version-control metadata (§4.D "Common preset"). It carries no
// path prefixes; callers add their own with WithPrefixes.
func Common() *Filter {
	return New(CommonIgnoreDirs, CommonIgnorePatterns, nil)
}

// WithPrefixes returns a copy of f with additional ignored path
// prefixes appended.
func (f *Filter) WithPrefixes(prefixes ...string) *Filter {
	clone := &Filter{dirs: f.dirs, patterns: f.patterns}
	clone.prefixes = append(append([][]string{}, f.prefixes...), toComponents(prefixes)...)
	return clone
}

func toComponents(prefixes []string) [][]string {
	out := make([][]string, 0, len(prefixes))
	for _, p := range prefixes {
		out = append(out, splitPath(p))
	}
	return out
}
