// package secrets resolves OAuth client credentials by logical name.
//
// The web process and the sync worker both look up the Spotify client
// id and secret at call time rather than holding them in memory, so
// rotating a secret never requires a restart.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/gerrymanoim/to-listen/internal/shared"
)

// Logical secret names resolved by a [Provider].
const (
	SpotifyClientID     = "spotify_client_id"
	SpotifyClientSecret = "spotify_client_secret"
)

// Provider resolves a secret value by logical name.
type Provider interface {
	Get(name string) (string, error)
}

// Env resolves secrets from environment variables.
//
// A logical name such as "spotify_client_id" is looked up as
// TO_LISTEN_SPOTIFY_CLIENT_ID first, then as SPOTIFY_CLIENT_ID.
type Env struct{}

func (Env) Get(name string) (string, error) {
	upper := strings.ToUpper(name)
	for _, key := range []string{"TO_LISTEN_" + upper, upper} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: secret %s not set", shared.ErrMissingCredentials, name)
}

// Static resolves secrets from a fixed map. Used in tests and local development.
type Static map[string]string

func (s Static) Get(name string) (string, error) {
	if v, ok := s[name]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: secret %s not set", shared.ErrMissingCredentials, name)
}

// Credentials resolves the Spotify client id and secret pair from the given [Provider].
func Credentials(p Provider) (clientID, clientSecret string, err error) {
	if clientID, err = p.Get(SpotifyClientID); err != nil {
		return "", "", err
	}
	if clientSecret, err = p.Get(SpotifyClientSecret); err != nil {
		return "", "", err
	}
	return clientID, clientSecret, nil
}
