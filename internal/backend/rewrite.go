package backend

import "strings"

// RewriteTable maps canonical image references to concrete backend registry
// references (§4.1 "Image rewriting"). One table per backend driver,
// supplied through that driver's Options.Rewrite.
type RewriteTable map[string]string

// Rewrite applies the table to canonical, falling back to the canonical
// reference unchanged when no mapping exists — a backend without a mirrored
// registry simply uses the canonical reference as-is.
func (t RewriteTable) Rewrite(canonical string) string {
	if t == nil {
		return canonical
	}
	if rewritten, ok := t[canonical]; ok {
		return rewritten
	}
	return canonical
}

// SplitTag separates "repo:tag" into its components, defaulting tag to
// "latest" when absent.
func SplitTag(ref string) (repo, tag string) {
	idx := strings.LastIndex(ref, ":")
	// Guard against a port in a registry host (e.g. "host:5000/repo") being
	// mistaken for a tag separator.
	if idx < 0 || strings.Contains(ref[idx:], "/") {
		return ref, "latest"
	}
	return ref[:idx], ref[idx+1:]
}
