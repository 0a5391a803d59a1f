package pspm

import (
	"regexp"
	"strings"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	skillNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

// ParseSpecifier classifies and tokenises the three specifier grammars
// described in §4.1. Classification is precedence-based: a leading
// "file:", "./" or "../" is local; a leading "github:" is github;
// otherwise the registry grammar is required.
func ParseSpecifier(raw string) (Specifier, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Specifier{}, &InputInvalidError{Offending: raw, Reason: "empty specifier"}
	}

	switch {
	case strings.HasPrefix(s, "file:"):
		return parseLocal(raw, strings.TrimPrefix(s, "file:"))
	case strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../"):
		return parseLocal(raw, s)
	case strings.HasPrefix(s, "github:"):
		return parseGitHub(raw, strings.TrimPrefix(s, "github:"))
	default:
		return parseRegistry(raw, s)
	}
}

func parseLocal(raw, path string) (Specifier, error) {
	if path == "" {
		return Specifier{}, &InputInvalidError{Offending: raw, Reason: "local specifier has no path"}
	}
	return Specifier{Kind: SourceLocal, Raw: raw, LocalPath: path}, nil
}

// parseGitHub splits on the last '@' that is not inside the owner/repo
// segment: everything before is owner/repo[/path], everything after is ref.
func parseGitHub(raw, body string) (Specifier, error) {
	if body == "" {
		return Specifier{}, &InputInvalidError{Offending: raw, Reason: "github specifier has no owner/repo"}
	}

	firstSlash := strings.Index(body, "/")
	if firstSlash < 0 {
		return Specifier{}, &InputInvalidError{Offending: raw, Reason: "github specifier must be owner/repo[/path][@ref]"}
	}

	// The owner/repo segment can't itself contain '@', so the repo name
	// ends at the first '/' or '@' after the owner; we only look for '@'
	// after the repo segment to split off ref.
	rest := body[firstSlash+1:]
	var repoEnd int
	if idx := strings.IndexAny(rest, "/@"); idx >= 0 {
		repoEnd = firstSlash + 1 + idx
	} else {
		repoEnd = len(body)
	}

	pathAndRef := body[repoEnd:]
	ownerRepo := body[:repoEnd]

	ownerRepoParts := strings.SplitN(ownerRepo, "/", 2)
	if len(ownerRepoParts) != 2 || ownerRepoParts[0] == "" || ownerRepoParts[1] == "" {
		return Specifier{}, &InputInvalidError{Offending: raw, Reason: "github specifier must be owner/repo[/path][@ref]"}
	}

	path := strings.TrimPrefix(pathAndRef, "/")
	ref := ""
	if at := strings.LastIndex(path, "@"); at >= 0 {
		ref = path[at+1:]
		path = path[:at]
	}

	return Specifier{
		Kind:  SourceGitHub,
		Raw:   raw,
		Owner: ownerRepoParts[0],
		Repo:  ownerRepoParts[1],
		Path:  path,
		Ref:   ref,
	}, nil
}

// parseRegistry parses @user/<username>/<name>[@<range>].
func parseRegistry(raw, body string) (Specifier, error) {
	if !strings.HasPrefix(body, "@user/") {
		return Specifier{}, &InputInvalidError{Offending: raw, Reason: "expected @user/<username>/<name>[@<range>], github:..., file:... or ./path"}
	}

	rangeStr := ""
	idPart := body
	if at := strings.LastIndex(body, "@"); at > 0 {
		idPart = body[:at]
		rangeStr = body[at+1:]
	}

	segments := strings.Split(strings.TrimPrefix(idPart, "@user/"), "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return Specifier{}, &InputInvalidError{Offending: raw, Reason: "expected @user/<username>/<name>[@<range>]"}
	}

	username, name := segments[0], segments[1]
	if !usernamePattern.MatchString(username) {
		return Specifier{}, &InputInvalidError{Offending: raw, Reason: "username must match [A-Za-z0-9_-]+"}
	}
	if !skillNamePattern.MatchString(name) {
		return Specifier{}, &InputInvalidError{Offending: raw, Reason: "name must start with a lowercase letter and continue with [a-z0-9_-]"}
	}

	return Specifier{
		Kind:     SourceRegistry,
		Raw:      raw,
		Username: username,
		Name:     name,
		Range:    rangeStr,
	}, nil
}

// Format renders a Specifier back to its canonical textual form. For
// registry and GitHub specifiers with no ambiguity, format(parse(s)) == s.
// A bare local path normalises to the "file:" form.
func Format(s Specifier) string {
	switch s.Kind {
	case SourceRegistry:
		out := s.RegistryKey()
		if s.Range != "" {
			out += "@" + s.Range
		}
		return out
	case SourceGitHub:
		out := s.GitHubKey()
		if s.Ref != "" {
			out += "@" + s.Ref
		}
		return out
	case SourceLocal:
		return s.LocalKey()
	default:
		return s.Raw
	}
}
