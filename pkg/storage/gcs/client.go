package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/logger"
)

const (
	storageBase      = "https://storage.googleapis.com/storage/v1"
	oauthTokenURL    = "https://oauth2.googleapis.com/token"
	storageScope     = "https://www.googleapis.com/auth/devstorage.read_write"
	metadataTokenURL = "http://metadata.google.internal/computeMetadata/v1/instance/service-accounts/default/token"
	pingTimeout      = 5 * time.Second
	requestTimeout   = 10 * time.Second
)

// Client talks to the Cloud Storage JSON API directly, authenticating with
// either service-account credentials or the GCE metadata server.
type Client struct {
	http          *http.Client
	defaultBucket string
	auth          *tokenCache
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	httpClient := &http.Client{Timeout: requestTimeout}
	auth, err := buildTokenCache(httpClient, gcp)
	if err != nil {
		return nil, err
	}

	client := &Client{http: httpClient, defaultBucket: cfg.BucketName, auth: auth}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

func buildTokenCache(httpClient *http.Client, gcp config.GCPConfig) (*tokenCache, error) {
	switch {
	case gcp.CredentialsJSON != "":
		return serviceAccountTokens(httpClient, gcp.CredentialsJSON)
	case gcp.ApplicationCredentials != "":
		raw, err := os.ReadFile(gcp.ApplicationCredentials)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		return serviceAccountTokens(httpClient, string(raw))
	default:
		return metadataTokens(httpClient), nil
	}
}

func (c *Client) BucketHandle(name string) *Bucket {
	if c == nil {
		return nil
	}
	if name == "" {
		name = c.defaultBucket
	}
	return &Bucket{name: name, client: c}
}

func (c *Client) DefaultBucket() string {
	if c == nil {
		return ""
	}
	return c.defaultBucket
}

func (c *Client) Close() error { return nil }

// Ping lists at most one object in the default bucket, which exercises both
// the credentials and the bucket ACL.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.auth == nil {
		return errors.New("gcs client not initialized")
	}
	if c.defaultBucket == "" {
		return errors.New("gcs bucket not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/b/%s/o?maxResults=1", storageBase, url.PathEscape(c.defaultBucket))
	resp, err := c.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return responseError("gcs object check", resp)
	}
	return nil
}

// do builds and sends one authenticated JSON API request.
func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	token, err := c.auth.token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

func responseError(action string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if len(snippet) > 0 {
		return fmt.Errorf("%s failed: %s: %s", action, resp.Status, strings.TrimSpace(string(snippet)))
	}
	return fmt.Errorf("%s failed: %s", action, resp.Status)
}

type Bucket struct {
	name   string
	client *Client
}

func (b *Bucket) Name() string { return b.name }

// tokenCache caches an access token until a minute before expiry.
type tokenCache struct {
	mu      sync.Mutex
	current string
	expiry  time.Time
	refresh func(context.Context) (string, time.Time, error)
}

func (t *tokenCache) token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != "" && time.Until(t.expiry) > time.Minute {
		return t.current, nil
	}
	fresh, expiry, err := t.refresh(ctx)
	if err != nil {
		return "", err
	}
	t.current, t.expiry = fresh, expiry
	return fresh, nil
}

func serviceAccountTokens(httpClient *http.Client, jsonCreds string) (*tokenCache, error) {
	var creds struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
		TokenURI    string `json:"token_uri"`
	}
	if err := json.Unmarshal([]byte(jsonCreds), &creds); err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}
	if creds.ClientEmail == "" || creds.PrivateKey == "" {
		return nil, errors.New("invalid service account credentials")
	}
	if creds.TokenURI == "" {
		creds.TokenURI = oauthTokenURL
	}
	key, err := parseRSAKey(creds.PrivateKey)
	if err != nil {
		return nil, err
	}

	return &tokenCache{
		refresh: func(ctx context.Context) (string, time.Time, error) {
			return exchangeJWT(ctx, httpClient, creds.ClientEmail, key, creds.TokenURI)
		},
	}, nil
}

func metadataTokens(httpClient *http.Client) *tokenCache {
	return &tokenCache{
		refresh: func(ctx context.Context) (string, time.Time, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataTokenURL, nil)
			if err != nil {
				return "", time.Time{}, err
			}
			req.Header.Set("Metadata-Flavor", "Google")
			resp, err := httpClient.Do(req)
			if err != nil {
				return "", time.Time{}, err
			}
			defer drainAndClose(resp.Body)
			if resp.StatusCode != http.StatusOK {
				return "", time.Time{}, fmt.Errorf("metadata token request returned %s", resp.Status)
			}
			return decodeTokenResponse(resp.Body)
		},
	}
}

// exchangeJWT signs a one-hour RS256 assertion and trades it for an access
// token at the OAuth endpoint.
func exchangeJWT(ctx context.Context, httpClient *http.Client, email string, key *rsa.PrivateKey, tokenURI string) (string, time.Time, error) {
	now := time.Now()
	claims, err := json.Marshal(map[string]any{
		"iss":   email,
		"scope": storageScope,
		"aud":   tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	unsigned := header + "." + base64.RawURLEncoding.EncodeToString(claims)
	digest := sha256.Sum256([]byte(unsigned))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", time.Time{}, err
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {unsigned + "." + base64.RawURLEncoding.EncodeToString(signature)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token endpoint returned %s", resp.Status)
	}
	return decodeTokenResponse(resp.Body)
}

func decodeTokenResponse(body io.Reader) (string, time.Time, error) {
	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return "", time.Time{}, err
	}
	return payload.AccessToken, time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second), nil
}

func parseRSAKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("invalid private key")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if priv, ok := key.(*rsa.PrivateKey); ok {
			return priv, nil
		}
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.New("unsupported private key format")
	}
	return priv, nil
}
