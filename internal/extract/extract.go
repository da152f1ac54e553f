// Package extract finds image references in Markdown document text.
//
// Identity is the exact matched raw text: two visually distinct
// references that render to the same literal text collapse into one
// match, and every later rewrite of that raw text touches all of its
// occurrences at once. This is a known sharp edge, kept for
// compatibility with how rewrites are applied.
package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	// localRe matches wiki-style embeds of files with an image extension,
	// e.g. ![[diagram.png]] or ![[assets/photo.JPEG]].
	localRe = regexp.MustCompile(`(?i)!\[\[([^\[\]\n]+?\.(?:png|jpe?g|gif|webp|svg|bmp|ico|tiff?))\]\]`)

	// remoteRe matches standard image embeds with an http(s) URL,
	// e.g. ![alt](https://example.com/a.png).
	remoteRe = regexp.MustCompile(`(?i)!\[([^\]\n]*)\]\((https?://[^\s)]+)\)`)

	// managedOriginRe matches provider-issued managed-storage hostnames.
	managedOriginRe = regexp.MustCompile(`(?i)^https?://[^/]+\.r2\.dev/`)

	safeNameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// LocalMatch is one deduplicated local-image reference.
type LocalMatch struct {
	RawText    string
	TargetPath string
	Line       int
}

// RemoteMatch is one deduplicated remote-image reference.
type RemoteMatch struct {
	RawText     string
	AltText     string
	URL         string
	FileName    string
	KnownOrigin bool
	Line        int
}

// Result holds the ordered, deduplicated references of one extraction pass.
type Result struct {
	Locals  []LocalMatch
	Remotes []RemoteMatch
}

// Extract scans text for local and remote image references. Matching is
// global and case-insensitive; duplicate raw texts are collapsed with
// the first occurrence (and its line number) winning. customDomain, if
// non-empty, marks remote URLs under it as known store origins.
func Extract(text, customDomain string) Result {
	var res Result

	seen := make(map[string]struct{})
	for _, m := range localRe.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[0]:m[1]]
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		res.Locals = append(res.Locals, LocalMatch{
			RawText:    raw,
			TargetPath: text[m[2]:m[3]],
			Line:       strings.Count(text[:m[0]], "\n"),
		})
	}

	seen = make(map[string]struct{})
	for _, m := range remoteRe.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[0]:m[1]]
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		u := text[m[4]:m[5]]
		res.Remotes = append(res.Remotes, RemoteMatch{
			RawText:     raw,
			AltText:     text[m[2]:m[3]],
			URL:         u,
			FileName:    FileNameFromURL(u),
			KnownOrigin: KnownOrigin(u, customDomain),
			Line:        strings.Count(text[:m[0]], "\n"),
		})
	}

	return res
}

// FileNameFromURL derives a display/save filename from the URL path:
// base name, sanitized, falling back to "image.jpg" when the path
// carries no extension.
func FileNameFromURL(rawURL string) string {
	const fallback = "image.jpg"

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	base := path.Base(parsed.Path)
	if base == "" || base == "." || base == "/" {
		return fallback
	}
	base = safeNameRe.ReplaceAllString(base, "_")
	if path.Ext(base) == "" {
		return fallback
	}
	return base
}

// KnownOrigin reports whether rawURL already points at the configured
// custom domain or a generic managed-storage hostname.
func KnownOrigin(rawURL, customDomain string) bool {
	if customDomain != "" && strings.HasPrefix(rawURL, customDomain) {
		return true
	}
	return managedOriginRe.MatchString(rawURL)
}
