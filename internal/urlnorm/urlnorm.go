// Package urlnorm canonicalizes URLs before they are persisted so that
// equivalent spellings of the same image compare equal.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// flags lowercases scheme and host, drops default ports and fragments, and
// sorts the query. The path is normalized separately on its escaped form so
// encoded slashes survive.
const flags = purell.FlagsSafe |
	purell.FlagRemoveFragment |
	purell.FlagSortQuery

var escapeRe = regexp.MustCompile(`%[0-9a-fA-F]{2}`)

// ErrUnsupportedURL is returned for URLs that are not http(s) or lack a host.
var ErrUnsupportedURL = errors.New("unsupported url")

// Canonicalizer implements og.Canonicalizer.
type Canonicalizer struct{}

// New creates a Canonicalizer.
func New() *Canonicalizer {
	return &Canonicalizer{}
}

// Canonicalize delegates to the package-level Canonicalize.
func (Canonicalizer) Canonicalize(rawURL string) (string, error) {
	return Canonicalize(rawURL)
}

// Canonicalize returns the canonical form of rawURL. Scheme-less and
// protocol-relative URLs are assumed to be http. Credentials, utm_*
// tracking parameters and a single leading "www." are removed; dot segments,
// empty segments and the trailing slash are dropped from the path.
// Canonicalize is idempotent.
func Canonicalize(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsupportedURL)
	}
	if strings.HasPrefix(raw, "//") {
		raw = "http:" + raw
	} else if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrUnsupportedURL, rawURL)
	}

	u.User = nil
	stripTracking(u)
	stripWWW(u)

	path := normalizePath(u.EscapedPath())
	u.Path, u.RawPath = "", ""
	out, err := url.Parse(purell.NormalizeURL(u, flags))
	if err != nil {
		return "", fmt.Errorf("parse normalized url: %w", err)
	}
	if path != "" {
		unescaped, err := url.PathUnescape(path)
		if err != nil {
			return "", fmt.Errorf("unescape path: %w", err)
		}
		out.Path, out.RawPath = unescaped, path
	}
	return out.String(), nil
}

// stripWWW removes one leading "www." unless another "www." follows it or
// nothing domain-like remains.
func stripWWW(u *url.URL) {
	host := strings.ToLower(u.Host)
	if !strings.HasPrefix(host, "www.") {
		return
	}
	rest := host[len("www."):]
	if strings.HasPrefix(rest, "www.") || !strings.Contains(rest, ".") {
		return
	}
	u.Host = u.Host[len("www."):]
}

// normalizePath resolves dot segments and drops empty segments of an
// escaped path. Escapes stay inside their segment, upper-cased.
func normalizePath(escaped string) string {
	var segments []string
	for _, seg := range strings.Split(escaped, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, escapeRe.ReplaceAllStringFunc(seg, strings.ToUpper))
		}
	}
	if len(segments) == 0 {
		return ""
	}
	return "/" + strings.Join(segments, "/")
}

func stripTracking(u *url.URL) {
	if u.RawQuery == "" {
		return
	}
	q := u.Query()
	changed := false
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
}
