package frontier

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/amosWeiskopf/portalcrawl/pkg/utils"
)

// DefaultLogoutMarker excludes links that would end the authenticated session.
const DefaultLogoutMarker = "logout"

const scriptMarker = "javascript:"

// FragmentPolicy decides what happens to hrefs carrying a #fragment.
type FragmentPolicy string

const (
	// FragmentStrip drops the fragment and validates what remains.
	FragmentStrip FragmentPolicy = "strip"
	// FragmentReject discards the whole href.
	FragmentReject FragmentPolicy = "reject"
)

// ParseFragmentPolicy validates a configured policy name.
func ParseFragmentPolicy(s string) (FragmentPolicy, error) {
	switch p := FragmentPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FragmentStrip, FragmentReject:
		return p, nil
	case "":
		return FragmentStrip, nil
	default:
		return "", fmt.Errorf("unknown fragment policy %q", s)
	}
}

// IsInternal reports whether candidate is a crawlable page of baseHost.
// It never fails: anything that does not parse as an absolute http(s) URL on
// exactly baseHost is rejected, as is any href mentioning the logout marker,
// the javascript: pseudo-protocol or a fragment.
func IsInternal(candidate, baseHost string) bool {
	return isInternal(candidate, baseHost, DefaultLogoutMarker)
}

func isInternal(candidate, baseHost, logoutMarker string) bool {
	if baseHost == "" {
		return false
	}
	u, err := url.Parse(candidate)
	if err != nil || !u.IsAbs() {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Hostname() != baseHost {
		return false
	}
	if logoutMarker != "" && strings.Contains(candidate, logoutMarker) {
		return false
	}
	return !strings.Contains(candidate, scriptMarker) && !strings.Contains(candidate, "#")
}

// Validator applies the crawl scope to raw hrefs read from a page.
type Validator struct {
	BaseHost       string
	LogoutMarker   string
	FragmentPolicy FragmentPolicy
}

// NewValidator returns a Validator for baseHost with default markers.
func NewValidator(baseHost string, policy FragmentPolicy) *Validator {
	return &Validator{
		BaseHost:       baseHost,
		LogoutMarker:   DefaultLogoutMarker,
		FragmentPolicy: policy,
	}
}

// Accept returns the canonical form of href and whether it is in scope.
// Under FragmentStrip, "page#section" is accepted as "page".
func (v *Validator) Accept(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if v.FragmentPolicy != FragmentReject && !strings.Contains(href, scriptMarker) {
		href = utils.StripFragment(href)
	}
	if !isInternal(href, v.BaseHost, v.LogoutMarker) {
		return "", false
	}
	return href, true
}

// Filter returns the in-scope hrefs, canonicalized and deduplicated, in
// first-seen order.
func (v *Validator) Filter(hrefs []string) []string {
	seen := make(map[string]struct{}, len(hrefs))
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		link, ok := v.Accept(href)
		if !ok {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}
