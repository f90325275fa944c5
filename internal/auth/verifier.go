package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"finease/internal/cache"
	"finease/internal/core"

	"github.com/ghodss/yaml"
	"google.golang.org/api/idtoken"
)

// Verifier turns a bearer credential into the owner's email.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

const (
	verifiedCacheSize     = 4096
	verifiedCacheTTL      = 5 * time.Minute
	verifiedSweepInterval = time.Minute
)

type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// GoogleVerifier validates Google-signed ID tokens issued for one audience.
// Verified tokens are remembered by hash until the earlier of their expiry
// and verifiedCacheTTL. Expired entries are swept on a cache miss, at most
// once per verifiedSweepInterval.
type GoogleVerifier struct {
	validate  validateFunc
	audience  string
	verified  *cache.LRU[string]
	now       func() time.Time
	lastSweep atomic.Int64 // unix nanos
}

func NewGoogleVerifier(ctx context.Context, audience string) (*GoogleVerifier, error) {
	if audience == "" {
		return nil, fmt.Errorf("google verifier: audience is required")
	}
	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("create id token validator: %w", err)
	}
	return newGoogleVerifier(v.Validate, audience), nil
}

func newGoogleVerifier(validate validateFunc, audience string) *GoogleVerifier {
	g := &GoogleVerifier{
		validate: validate,
		audience: audience,
		now:      time.Now,
	}
	g.verified = cache.NewLRU[string](verifiedCacheSize, func() time.Time { return g.now() })
	return g
}

func (g *GoogleVerifier) Verify(ctx context.Context, token string) (string, error) {
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	if email, ok := g.verified.Get(key); ok {
		return email, nil
	}
	g.sweep()

	payload, err := g.validate(ctx, token, g.audience)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	email, err := emailFromClaims(payload.Claims)
	if err != nil {
		return "", err
	}

	until := g.now().Add(verifiedCacheTTL)
	if exp := time.Unix(payload.Expires, 0); payload.Expires > 0 && exp.Before(until) {
		until = exp
	}
	g.verified.Set(key, email, until)
	return email, nil
}

// sweep drops expired tokens when verifiedSweepInterval has passed since
// the previous sweep. Concurrent callers race on the CAS and one wins.
func (g *GoogleVerifier) sweep() {
	now := g.now().UnixNano()
	last := g.lastSweep.Load()
	if now-last < int64(verifiedSweepInterval) || !g.lastSweep.CompareAndSwap(last, now) {
		return
	}
	g.verified.Sweep()
}

// emailFromClaims requires an email claim and rejects it when the provider
// explicitly marks it unverified.
func emailFromClaims(claims map[string]interface{}) (string, error) {
	email, _ := claims["email"].(string)
	if strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("%w: token has no email claim", core.ErrUnauthenticated)
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return "", fmt.Errorf("%w: email not verified", core.ErrUnauthenticated)
	}
	return email, nil
}

// StaticVerifier maps fixed tokens to emails. It backs local development
// and tests.
type StaticVerifier struct {
	tokens map[string]string
}

type staticFile struct {
	Tokens map[string]string `json:"tokens"`
}

func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	cp := make(map[string]string, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &StaticVerifier{tokens: cp}
}

// LoadStaticVerifier reads a YAML file of the form:
//
//	tokens:
//	  dev-token: someone@example.com
func LoadStaticVerifier(path string) (*StaticVerifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokens file: %w", err)
	}
	var f staticFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tokens file: %w", err)
	}
	if len(f.Tokens) == 0 {
		return nil, fmt.Errorf("tokens file %s defines no tokens", path)
	}
	return NewStaticVerifier(f.Tokens), nil
}

func (s *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	for known, email := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return email, nil
		}
	}
	return "", fmt.Errorf("%w: unknown token", core.ErrUnauthenticated)
}
