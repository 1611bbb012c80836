package auth

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config contains the OpenID Connect settings required to run the
// authorization-code flow against Entra ID.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// Enabled reports whether the registration is complete enough to sign in.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Issuer) != "" &&
		strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.RedirectURL) != ""
}

func (c Config) scopeString() string {
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	return strings.Join(scopes, " ")
}

// providerMetadata is the subset of the discovery document we consume.
type providerMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

func discoverProvider(ctx context.Context, client *http.Client, issuer string) (*providerMetadata, error) {
	wellKnown := strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, err
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("discovery failed with %d: %s", res.StatusCode, string(body))
	}

	var metadata providerMetadata
	if err := json.NewDecoder(res.Body).Decode(&metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// jwksCache holds the provider's RSA signing keys, refreshed hourly or when
// an unknown key id shows up.
type jwksCache struct {
	mu       sync.Mutex
	keys     map[string]*rsa.PublicKey
	source   string
	client   *http.Client
	fetched  time.Time
	lifespan time.Duration
}

func newJWKSCache(uri string, client *http.Client) *jwksCache {
	return &jwksCache{
		keys:     make(map[string]*rsa.PublicKey),
		source:   uri,
		client:   client,
		lifespan: time.Hour,
	}
}

func (c *jwksCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, ok := c.keys[kid]; ok && time.Since(c.fetched) < c.lifespan {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("jwks missing key %s", kid)
	}
	return key, nil
}

func (c *jwksCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.source, nil)
	if err != nil {
		return err
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("jwks fetch failed with %d: %s", res.StatusCode, string(body))
	}

	var payload struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}

	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, jwk := range payload.Keys {
		if jwk.Kty != "RSA" {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
		if err != nil {
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
		if err != nil {
			continue
		}
		var eInt int
		for _, b := range eBytes {
			eInt = eInt<<8 + int(b)
		}
		if eInt == 0 {
			continue
		}

		keys[jwk.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: eInt,
		}
	}

	if len(keys) == 0 {
		return errors.New("no jwk keys discovered")
	}

	c.keys = keys
	c.fetched = time.Now()
	return nil
}

type audienceClaim []string

func (a *audienceClaim) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audienceClaim{single}
		return nil
	}
	var multiple []string
	if err := json.Unmarshal(data, &multiple); err != nil {
		return err
	}
	*a = audienceClaim(multiple)
	return nil
}

func (a audienceClaim) Contains(value string) bool {
	for _, aud := range a {
		if aud == value {
			return true
		}
	}
	return false
}

// idTokenClaims carries the claims this application reads from a verified
// id token. An absent roles claim decodes to nil, which downstream treats
// identically to an empty list.
type idTokenClaims struct {
	Issuer            string        `json:"iss"`
	Subject           string        `json:"sub"`
	Audience          audienceClaim `json:"aud"`
	Expiry            int64         `json:"exp"`
	Nonce             string        `json:"nonce"`
	Email             string        `json:"email"`
	PreferredUsername string        `json:"preferred_username"`
	Name              string        `json:"name"`
	Roles             []string      `json:"roles"`
}

func (c *idTokenClaims) Validate(clientID, issuer, nonce string) error {
	if c.Issuer != issuer {
		return errors.New("issuer mismatch")
	}
	if !c.Audience.Contains(clientID) {
		return errors.New("audience mismatch")
	}
	if c.Nonce != nonce {
		return errors.New("nonce mismatch")
	}
	if c.Expiry > 0 && time.Now().After(time.Unix(c.Expiry, 0)) {
		return errors.New("id token expired")
	}
	if c.Subject == "" {
		return errors.New("subject missing")
	}
	return nil
}

// EmailAddress prefers the email claim, falling back to Entra's
// preferred_username which carries the UPN.
func (c *idTokenClaims) EmailAddress() string {
	if c.Email != "" {
		return c.Email
	}
	return c.PreferredUsername
}

func verifyIDToken(ctx context.Context, keys *jwksCache, raw string) (*idTokenClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, errors.New("id token structure invalid")
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, err
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}

	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, err
	}

	if header.Alg != "RS256" {
		return nil, fmt.Errorf("unsupported id token alg %s", header.Alg)
	}

	key, err := keys.key(ctx, header.Kid)
	if err != nil {
		return nil, err
	}

	signed := parts[0] + "." + parts[1]
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256([]byte(signed))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hash[:], sig); err != nil {
		return nil, err
	}

	var claims idTokenClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}
