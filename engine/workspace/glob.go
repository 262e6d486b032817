package workspace

import (
	"path/filepath"
	"regexp"
	"strings"
)

// expandBraces expands a single level of shell-style brace alternation
// ("*.{ts,tsx}" -> ["*.ts", "*.tsx"]). Patterns without braces are returned
// unchanged as a single-element slice. Nested braces are not supported.
func expandBraces(pattern string) []string {
	start := strings.IndexByte(pattern, '{')
	if start < 0 {
		return []string{pattern}
	}
	end := strings.IndexByte(pattern[start:], '}')
	if end < 0 {
		return []string{pattern}
	}
	end += start
	prefix, suffix := pattern[:start], pattern[end+1:]
	alts := strings.Split(pattern[start+1:end], ",")
	out := make([]string, 0, len(alts))
	for _, alt := range alts {
		out = append(out, prefix+alt+suffix)
	}
	return out
}

// globToRegexp compiles a glob pattern supporting "*" (any run of
// non-separator characters), "**" (any run of characters including
// separators), and "?" into an anchored regular expression matched against
// a slash-normalized relative path.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	pattern = filepath.ToSlash(pattern)
	var b strings.Builder
	b.WriteString("^")
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch {
		case strings.HasPrefix(pattern[i:], "**"):
			b.WriteString(".*")
			i += 2
		case c == '*':
			b.WriteString("[^/]*")
			i++
		case c == '?':
			b.WriteString("[^/]")
			i++
		case strings.ContainsRune(`.+()|^$\`, rune(c)):
			b.WriteByte('\\')
			b.WriteByte(c)
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// matchAny reports whether relPath (slash-separated) matches any of the
// given glob patterns, each of which may itself contain brace alternation.
func matchAny(patterns []string, relPath string) (bool, error) {
	for _, p := range patterns {
		for _, alt := range expandBraces(p) {
			re, err := globToRegexp(alt)
			if err != nil {
				return false, err
			}
			if re.MatchString(relPath) {
				return true, nil
			}
		}
	}
	return false, nil
}
