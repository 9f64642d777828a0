package pipeline

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// ResolveURL picks the page to render: the invocation URL when given,
// otherwise the configured search URL. Filters are merged into the query,
// replacing parameters of the same name.
func ResolveURL(raw, searchURL string, filters map[string]string) (*url.URL, error) {
	base := strings.TrimSpace(raw)
	if base == "" {
		base = strings.TrimSpace(searchURL)
	}
	if base == "" {
		return nil, eris.New("pipeline: no target url and no marketplace search url configured")
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: parse target url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("pipeline: unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, eris.New("pipeline: target url has no host")
	}

	if len(filters) > 0 {
		q := u.Query()
		for k, v := range filters {
			if k == "" {
				continue
			}
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}
