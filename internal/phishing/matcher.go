// Package phishing classifies listing URLs against a whitelist of known marketplaces.
package phishing

import (
	"net/url"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/net/idna"

	"github.com/truthlens/truthlens/internal/domain"
)

// MaxTyposquatDistance is the largest edit distance still treated as an
// imitation of a whitelisted domain.
const MaxTyposquatDistance = 2

// Matcher checks URLs against an immutable whitelist.
// It is safe for concurrent use.
type Matcher struct {
	whitelist []string
	exact     map[string]struct{}
}

// NewMatcher creates a matcher over a copy of the given whitelist.
// Entries are lower-cased and blank entries are dropped.
func NewMatcher(whitelist []string) *Matcher {
	m := &Matcher{
		whitelist: make([]string, 0, len(whitelist)),
		exact:     make(map[string]struct{}, len(whitelist)),
	}
	for _, entry := range whitelist {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if _, dup := m.exact[entry]; dup {
			continue
		}
		m.exact[entry] = struct{}{}
		m.whitelist = append(m.whitelist, entry)
	}
	return m
}

// Whitelist returns a copy of the whitelisted domains.
func (m *Matcher) Whitelist() []string {
	out := make([]string, len(m.whitelist))
	copy(out, m.whitelist)
	return out
}

// CheckPhishing classifies the registrable domain of rawURL.
// It never fails: anything that cannot be parsed into a host is Unknown.
func (m *Matcher) CheckPhishing(rawURL string) domain.DomainVerdict {
	host, ok := Host(rawURL)
	if !ok {
		return domain.VerdictUnknown
	}

	registrable := RegistrableDomain(host)
	if m.isWhitelisted(registrable) || m.isWhitelisted(host) {
		return domain.VerdictSafe
	}

	for _, safe := range m.whitelist {
		if levenshtein.ComputeDistance(registrable, safe) <= MaxTyposquatDistance {
			return domain.VerdictPhishingWarning
		}
	}

	return domain.VerdictSuspicious
}

func (m *Matcher) isWhitelisted(host string) bool {
	_, ok := m.exact[host]
	return ok
}

// Host extracts the lower-cased host of rawURL without its port.
// Internationalised hosts are converted to their ASCII (punycode) form so that
// homograph look-alikes are compared byte for byte.
func Host(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)

	var host string
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	} else if h, ok := authorityHost(rawURL); ok {
		// Bad escapes or control characters in the path do not hide the host.
		host = h
	}

	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", false
	}

	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		host = ascii
	}
	return host, true
}

// authorityHost splits the host out of scheme://[userinfo@]host[:port] without
// validating the rest of the URL. An unterminated IPv6 literal has no host.
func authorityHost(rawURL string) (string, bool) {
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok || scheme == "" || strings.ContainsAny(scheme, "/?#") {
		return "", false
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return "", false
		}
		return rest[1:end], rest[1:end] != ""
	}
	if strings.Contains(rest, "]") {
		return "", false
	}
	host, _, _ := strings.Cut(rest, ":")
	return host, host != ""
}

// RegistrableDomain keeps the last two labels of host.
// Multi-label public suffixes such as co.uk are not special-cased.
func RegistrableDomain(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
