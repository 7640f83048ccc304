package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sumire/issuedraft/internal/domain"
)

type memUsers struct {
	byID map[string]*domain.User
}

func (m *memUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memUsers) Upsert(_ context.Context, u domain.User) (*domain.User, error) {
	u.ID = "user-1"
	m.byID[u.ID] = &u
	return &u, nil
}

type memConnections struct {
	saved []domain.GitHubConnection
}

func (m *memConnections) Upsert(_ context.Context, c domain.GitHubConnection) error {
	m.saved = append(m.saved, c)
	return nil
}

func newTestAuth(apiURL string) (*AuthService, *memUsers, *memConnections) {
	users := &memUsers{byID: map[string]*domain.User{}}
	conns := &memConnections{}
	svc := NewAuthService(users, conns, AuthConfig{
		GitHubClientID:     "cid",
		GitHubClientSecret: "csecret",
		GitHubAPIURL:       apiURL,
		JWTSecret:          "test-secret",
		FrontendURL:        "http://localhost:5173",
	})
	return svc, users, conns
}

func TestAuthService_TokenRoundTrip(t *testing.T) {
	svc, _, _ := newTestAuth("")

	pair, err := svc.generateTokenPair("user-42")
	require.NoError(t, err)

	userID, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)

	_, err = svc.ValidateToken(pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrUnauthorized, "refresh token is not an access token")

	refreshed, err := svc.RefreshAccessToken(pair.RefreshToken)
	require.NoError(t, err)
	userID, err = svc.ValidateToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestAuthService_RejectsForeignSignature(t *testing.T) {
	svc, _, _ := newTestAuth("")

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "user-42",
		"type": "access",
		"exp":  time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(forged)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthService_GitHubAuthURL(t *testing.T) {
	svc, _, _ := newTestAuth("")

	u := svc.GitHubAuthURL("xyz")
	assert.Contains(t, u, "state=xyz")
	assert.Contains(t, u, "client_id=cid")
	assert.Contains(t, u, "scope=repo+user%3Aemail")
}

func TestAuthService_GitHubCallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_abc","token_type":"bearer","refresh_token":"ghr_def"}`))
	})
	mux.HandleFunc("/api/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_abc", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":99,"login":"octo","avatar_url":"https://avatars/octo"}`))
	})
	mux.HandleFunc("/api/user/emails", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"email":"alt@example.com","primary":false},{"email":"octo@example.com","primary":true}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc, _, conns := newTestAuth(srv.URL + "/api")
	svc.github.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}

	user, pair, err := svc.GitHubCallback(context.Background(), "code-1")
	require.NoError(t, err)

	assert.Equal(t, int64(99), user.GitHubID)
	assert.Equal(t, "octo", user.Login)
	assert.Equal(t, "octo", user.DisplayName)
	assert.Equal(t, "octo@example.com", user.Email)

	require.Len(t, conns.saved, 1)
	assert.Equal(t, domain.GitHubConnection{
		UserID:       "user-1",
		AccessToken:  "gho_abc",
		RefreshToken: "ghr_def",
	}, conns.saved[0])

	userID, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}
