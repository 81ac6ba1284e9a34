package utils

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	nonFilename = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// MaxFilenameStem caps the URL-derived part of snapshot filenames.
const MaxFilenameStem = 100

// CleanText collapses runs of whitespace and trims the result
func CleanText(text string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
}

// TruncateText cuts text to at most maxRunes characters. Text that is
// already short enough is returned unchanged; longer text always comes back
// with exactly maxRunes characters. A non-positive maxRunes disables the cut.
func TruncateText(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	n := 0
	for i := range text {
		if n == maxRunes {
			return text[:i]
		}
		n++
	}
	return text
}

// Excerpt shortens text for display, preserving word boundaries
func Excerpt(text string, maxRunes int) string {
	text = CleanText(text)
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	truncated := TruncateText(text, maxRunes)
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

// StripFragment removes the #fragment part of a URL string.
func StripFragment(rawURL string) string {
	if idx := strings.Index(rawURL, "#"); idx >= 0 {
		return rawURL[:idx]
	}
	return rawURL
}

// ResolveURL resolves ref against base. ref is returned as-is when either
// side cannot be parsed.
func ResolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// SanitizeFilename turns a URL into a filesystem-safe stem: the scheme is
// dropped, every run of non-alphanumeric characters becomes one underscore
// and the result is capped at MaxFilenameStem bytes.
func SanitizeFilename(rawURL string) string {
	if idx := strings.Index(rawURL, "://"); idx > 0 {
		rawURL = rawURL[idx+3:]
	}
	cleaned := strings.Trim(nonFilename.ReplaceAllString(rawURL, "_"), "_")
	if len(cleaned) > MaxFilenameStem {
		cleaned = cleaned[:MaxFilenameStem]
	}
	if cleaned == "" {
		return "page"
	}
	return cleaned
}

// PathSection returns the first path segment of a URL, "/" for the root
func PathSection(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "/"
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return "/" + segments[0]
	}
	return "/"
}

// HostOf returns the hostname of rawURL, without port.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
