package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
)

const maxKeySetBytes = 1 << 20

var errUnknownKey = errors.New("auth: signing key not found in key set")

// KeySet is a remotely fetched JSON Web Key Set. It is fetched on first use
// and then reused for the lifetime of the process; there is no background
// refresh and an unknown kid does not trigger a refetch. A failed fetch is
// not remembered, so the next caller tries again.
type KeySet struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	cached cachedKeySet
}

type cachedKeySet struct {
	keys  *jose.JSONWebKeySet
	ready bool
}

// NewKeySet creates a lazily loaded key set for url. A nil client uses a
// client with a ten second timeout.
func NewKeySet(url string, client *http.Client) *KeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySet{url: strings.TrimSpace(url), client: client}
}

// URL returns the key set location.
func (k *KeySet) URL() string { return k.url }

// Key returns the public key for kid. An empty kid matches the only key of
// a single-key set.
func (k *KeySet) Key(ctx context.Context, kid string) (any, error) {
	set, err := k.load(ctx)
	if err != nil {
		return nil, err
	}
	if kid == "" {
		if len(set.Keys) == 1 {
			return set.Keys[0].Key, nil
		}
		return nil, errUnknownKey
	}
	matches := set.Key(kid)
	if len(matches) == 0 {
		return nil, errUnknownKey
	}
	return matches[0].Key, nil
}

func (k *KeySet) load(ctx context.Context) (*jose.JSONWebKeySet, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cached.ready {
		return k.cached.keys, nil
	}
	keys, err := k.fetch(ctx)
	if err != nil {
		return nil, err
	}
	k.cached = cachedKeySet{keys: keys, ready: true}
	return keys, nil
}

func (k *KeySet) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	if k.url == "" {
		return nil, errors.New("auth: key set url is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build key set request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch key set: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch key set: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, fmt.Errorf("read key set: %w", err)
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode key set: %w", err)
	}
	if len(set.Keys) == 0 {
		return nil, errors.New("auth: key set is empty")
	}
	return &set, nil
}

// DiscoverKeySetURL resolves jwks_uri from the issuer's OpenID configuration.
func DiscoverKeySetURL(ctx context.Context, issuer string) (string, error) {
	provider, err := oidc.NewProvider(ctx, strings.TrimRight(issuer, "/"))
	if err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	var meta struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("oidc discovery claims: %w", err)
	}
	if meta.JWKSURL == "" {
		return "", errors.New("oidc discovery: jwks_uri missing")
	}
	return meta.JWKSURL, nil
}
