// Package credentials resolves the credentials used to read remote manifests.
package credentials

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/oauth2"
)

// Type selects how a credential is presented to the remote server.
type Type string

const (
	// TypeBasic sends the credential as HTTP Basic authentication
	TypeBasic Type = "basic"

	// TypeBearer sends the secret as an OAuth2 bearer token
	TypeBearer Type = "bearer"
)

// Credentials is a username/secret pair resolved for a URL.
type Credentials struct {
	Type     Type
	Username string
	Secret   string
}

// Apply sets the authorization header for the credential on req.
func (c *Credentials) Apply(req *http.Request) {
	if c == nil {
		return
	}
	switch c.Type {
	case TypeBearer:
		(&oauth2.Token{AccessToken: c.Secret, TokenType: "Bearer"}).SetAuthHeader(req)
	default:
		req.SetBasicAuth(c.Username, c.Secret)
	}
}

// Resolver looks up credentials for a URL.
type Resolver interface {
	// ResolveCredentials returns nil credentials and no error when nothing applies
	ResolveCredentials(ctx context.Context, url string) (*Credentials, error)
}

// Entry binds credentials to every URL starting with URLPrefix.
type Entry struct {
	URLPrefix   string
	Credentials Credentials
}

// StaticResolver resolves credentials from a fixed list of URL prefixes.
// The longest matching prefix wins.
type StaticResolver struct {
	entries []Entry
}

var _ Resolver = (*StaticResolver)(nil)

// NewStaticResolver creates a resolver over the given entries.
func NewStaticResolver(entries ...Entry) *StaticResolver {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].URLPrefix) > len(sorted[j].URLPrefix)
	})
	return &StaticResolver{entries: sorted}
}

// ResolveCredentials returns the credentials of the longest prefix matching url.
func (r *StaticResolver) ResolveCredentials(_ context.Context, url string) (*Credentials, error) {
	for _, e := range r.entries {
		if e.URLPrefix != "" && strings.HasPrefix(url, e.URLPrefix) {
			creds := e.Credentials
			if creds.Type == "" {
				creds.Type = TypeBasic
			}
			return &creds, nil
		}
	}
	return nil, nil
}

// NoopResolver never returns credentials.
type NoopResolver struct{}

// ResolveCredentials always returns nil.
func (NoopResolver) ResolveCredentials(context.Context, string) (*Credentials, error) {
	return nil, nil
}
