package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finease/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		requested string
		want      core.Scope
		wantErr   error
	}{
		{name: "no principal", requested: "a@x.com", wantErr: core.ErrUnauthenticated},
		{name: "unscoped", principal: "a@x.com", want: core.Scope{}},
		{name: "matching scope", principal: "a@x.com", requested: "a@x.com", want: core.OwnedBy("a@x.com")},
		{name: "foreign scope", principal: "b@x.com", requested: "a@x.com", wantErr: core.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Authorize(tt.principal, tt.requested)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthorizeOwner(t *testing.T) {
	_, err := AuthorizeOwner("a@x.com", "")
	assert.ErrorIs(t, err, core.ErrScopeRequired)

	_, err = AuthorizeOwner("a@x.com", "b@x.com")
	assert.ErrorIs(t, err, core.ErrForbidden)

	scope, err := AuthorizeOwner("a@x.com", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", scope.Owner)
}

func TestEmailFromClaims(t *testing.T) {
	email, err := emailFromClaims(map[string]interface{}{"email": "a@x.com", "email_verified": true})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", email)

	_, err = emailFromClaims(map[string]interface{}{"sub": "123"})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)

	_, err = emailFromClaims(map[string]interface{}{"email": "a@x.com", "email_verified": false})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestLoadStaticVerifier(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tokens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tokens:\n  tok-a: a@x.com\n  tok-b: b@x.com\n"), 0o600))

	v, err := LoadStaticVerifier(path)
	require.NoError(t, err)

	email, err := v.Verify(context.Background(), "tok-b")
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", email)

	_, err = v.Verify(context.Background(), "tok-c")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("tokens: {}\n"), 0o600))
	_, err = LoadStaticVerifier(empty)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

type verifierFunc func(ctx context.Context, token string) (string, error)

func (f verifierFunc) Verify(ctx context.Context, token string) (string, error) { return f(ctx, token) }

func TestRequire(t *testing.T) {
	v := NewStaticVerifier(map[string]string{"tok-a": "a@x.com"})
	var failures []error
	onFail := func(w http.ResponseWriter, r *http.Request, err error) {
		failures = append(failures, err)
		w.WriteHeader(http.StatusUnauthorized)
	}
	h := Require(v, onFail)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(PrincipalFrom(r.Context())))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok-a")
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "a@x.com", rr.Body.String())

	require.Len(t, failures, 2)
	for _, err := range failures {
		assert.ErrorIs(t, err, core.ErrUnauthenticated)
	}

	// Verifier errors of any kind are reported as unauthenticated.
	failures = nil
	h = Require(verifierFunc(func(context.Context, string) (string, error) {
		return "", errors.New("jwks fetch failed")
	}), onFail)(http.NotFoundHandler())
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], core.ErrUnauthenticated)
}

func TestGoogleVerifierCachesVerifiedTokens(t *testing.T) {
	calls := 0
	expires := time.Now().Add(time.Hour).Unix()
	g := newGoogleVerifier(func(_ context.Context, token, audience string) (*idtoken.Payload, error) {
		calls++
		assert.Equal(t, "finease-web", audience)
		switch token {
		case "good":
			return &idtoken.Payload{Expires: expires, Claims: map[string]interface{}{"email": "a@x.com", "email_verified": true}}, nil
		case "stale":
			return &idtoken.Payload{Expires: time.Now().Add(-time.Minute).Unix(), Claims: map[string]interface{}{"email": "a@x.com"}}, nil
		case "unverified":
			return &idtoken.Payload{Expires: expires, Claims: map[string]interface{}{"email": "a@x.com", "email_verified": false}}, nil
		default:
			return nil, errors.New("bad signature")
		}
	}, "finease-web")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		email, err := g.Verify(ctx, "good")
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", email)
	}
	assert.Equal(t, 1, calls)

	calls = 0
	_, _ = g.Verify(ctx, "stale")
	_, _ = g.Verify(ctx, "stale")
	assert.Equal(t, 2, calls, "tokens past expiry are not remembered")

	calls = 0
	for i := 0; i < 2; i++ {
		_, err := g.Verify(ctx, "forged")
		assert.ErrorIs(t, err, core.ErrUnauthenticated)
		_, err = g.Verify(ctx, "unverified")
		assert.ErrorIs(t, err, core.ErrUnauthenticated)
	}
	assert.Equal(t, 4, calls, "failures are never cached")
}

func TestGoogleVerifierSweepsExpiredTokens(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	g := newGoogleVerifier(func(_ context.Context, token, _ string) (*idtoken.Payload, error) {
		return &idtoken.Payload{
			Expires: now.Add(time.Hour).Unix(),
			Claims:  map[string]interface{}{"email": token + "@x.com"},
		}, nil
	}, "finease-web")
	g.now = func() time.Time { return now }
	ctx := context.Background()

	for _, token := range []string{"a", "b", "c"} {
		_, err := g.Verify(ctx, token)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, g.verified.Len())

	now = now.Add(verifiedCacheTTL + time.Second)
	email, err := g.Verify(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "d@x.com", email)
	assert.Equal(t, 1, g.verified.Len(), "a miss sweeps tokens past their cache lifetime")

	now = now.Add(verifiedCacheTTL + time.Second)
	_, err = g.Verify(ctx, "e")
	require.NoError(t, err)
	assert.Equal(t, 1, g.verified.Len())

	now = now.Add(verifiedSweepInterval / 2)
	_, err = g.Verify(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, 2, g.verified.Len(), "no second sweep within the interval")
}
