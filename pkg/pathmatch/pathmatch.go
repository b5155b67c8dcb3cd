// Package pathmatch implements the glob-style path matching used to decide
// which gates apply to a route.
//
// Supported patterns:
//   - exact paths: "/health"
//   - catch-all: "/**"
//   - trailing subtree wildcard: "/project/**"
//   - mid-pattern wildcard: "/project/**/stage/**"
//   - single segment wildcard: "/project/*"
//   - plain prefix: "/project"
package pathmatch

import "strings"

// Matches reports whether path matches the given pattern.
//
// The mid-pattern "/**/" form is a two-part substring check, not a
// segment-tokenized glob: the path must start with the part before the
// wildcard and contain the part after it. Patterns with more than one
// "/**/" separator are unsupported and never match.
func Matches(path, pattern string) bool {
	if pattern == path {
		return true
	}

	if pattern == "/**" {
		return true
	}

	// Trailing subtree wildcard: /project/**
	if strings.HasSuffix(pattern, "/**") && !strings.Contains(pattern, "/**/") {
		prefix := strings.TrimSuffix(pattern, "/**")
		if path == prefix {
			return true
		}
		return strings.HasPrefix(path, prefix+"/")
	}

	// Mid-pattern wildcard: /project/**/stage/**
	if strings.Contains(pattern, "/**/") {
		parts := strings.SplitN(pattern, "/**/", 2)
		if len(parts) == 2 && !strings.Contains(parts[1], "/**/") {
			prefix := parts[0]
			suffix := strings.TrimSuffix(parts[1], "/**")
			if strings.HasPrefix(path, prefix+"/") {
				rest := path[len(prefix):]
				return strings.Contains(rest, "/"+suffix)
			}
		}
		return false
	}

	// Single segment wildcard: /project/*
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if !strings.HasPrefix(path, prefix+"/") {
			return false
		}
		remaining := path[len(prefix)+1:]
		return !strings.Contains(remaining, "/")
	}

	// Plain prefix: /project matches /project/5
	return strings.HasPrefix(path, pattern+"/")
}

// MatchesAny reports whether path matches at least one of the patterns.
func MatchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if Matches(path, pattern) {
			return true
		}
	}
	return false
}

// Config declares which routes a gate applies to.
//
// With no PathPatterns the gate applies everywhere except paths matching
// ExcludePatterns. With PathPatterns present the path must match at least
// one include pattern and no exclude pattern.
type Config struct {
	PathPatterns    []string
	ExcludePatterns []string
}

// ShouldApply reports whether a gate with this config applies to routePath.
func (c Config) ShouldApply(routePath string) bool {
	if len(c.PathPatterns) == 0 {
		return !MatchesAny(routePath, c.ExcludePatterns)
	}

	if !MatchesAny(routePath, c.PathPatterns) {
		return false
	}
	return !MatchesAny(routePath, c.ExcludePatterns)
}
