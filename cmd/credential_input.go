package main

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// defaultCookieEnv names the variable a session cookie is read from when no
// other source is given. Cookies are never accepted as flag values.
const defaultCookieEnv = "LISTINGSYNC_SESSION_COOKIE"

type credentialSource struct {
	env   string
	stdin bool
}

// read returns the raw credential. A missing value is not an error: the
// validator reports it with diagnostics.
func (s credentialSource) read(stdin io.Reader) (string, error) {
	if s.stdin {
		b, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
		if err != nil {
			return "", eris.Wrap(err, "read credential from stdin")
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}
	return os.Getenv(s.env), nil
}
