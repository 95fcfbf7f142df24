package noderegistry

import "strings"

// NormalizeGitHubURL canonicalizes a repository URL to
// "https://github.com/<owner>/<repo>": SSH forms are converted to HTTPS,
// and only a trailing ".git" suffix is stripped (per the spec's codified
// resolution of the source's two disagreeing behaviors — mid-string
// ".git" occurrences, e.g. an owner or repo literally named "x.git", are
// left alone). Returns "" for input that cannot be recognized as a GitHub
// URL at all.
func NormalizeGitHubURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(u, "git@github.com:"):
		u = "https://github.com/" + strings.TrimPrefix(u, "git@github.com:")
	case strings.HasPrefix(u, "ssh://git@github.com/"):
		u = "https://github.com/" + strings.TrimPrefix(u, "ssh://git@github.com/")
	case strings.HasPrefix(u, "http://github.com/"):
		u = "https://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://github.com/"):
		// already canonical host/scheme
	default:
		return ""
	}

	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, ".git")

	const prefix = "https://github.com/"
	rest := strings.TrimPrefix(u, prefix)
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ""
	}
	return prefix + parts[0] + "/" + parts[1]
}
