package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	githubOAuth "golang.org/x/oauth2/github"

	"github.com/sumire/issuedraft/internal/domain"
	"github.com/sumire/issuedraft/internal/github"
)

// UserStore defines the user data access interface consumed by AuthService.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Upsert(ctx context.Context, user domain.User) (*domain.User, error)
}

// ConnectionStore persists the GitHub tokens obtained at login.
type ConnectionStore interface {
	Upsert(ctx context.Context, conn domain.GitHubConnection) error
}

// AuthConfig holds OAuth configuration.
type AuthConfig struct {
	GitHubClientID     string
	GitHubClientSecret string
	GitHubAPIURL       string
	JWTSecret          string
	FrontendURL        string
}

// AuthService handles authentication logic.
type AuthService struct {
	users       UserStore
	connections ConnectionStore
	jwtSecret   []byte
	apiURL      string
	github      *oauth2.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, connections ConnectionStore, cfg AuthConfig) *AuthService {
	return &AuthService{
		users:       users,
		connections: connections,
		jwtSecret:   []byte(cfg.JWTSecret),
		apiURL:      cfg.GitHubAPIURL,
		github: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     githubOAuth.Endpoint,
			Scopes:       []string{"repo", "user:email"},
			RedirectURL:  cfg.FrontendURL + "/auth/github/callback",
		},
	}
}

// GitHubAuthURL returns the GitHub OAuth authorization URL.
func (s *AuthService) GitHubAuthURL(state string) string {
	return s.github.AuthCodeURL(state)
}

// TokenPair holds an access token and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// GitHubCallback exchanges the authorization code, records the user and their
// GitHub connection, and returns a JWT pair.
func (s *AuthService) GitHubCallback(ctx context.Context, code string) (*domain.User, *TokenPair, error) {
	token, err := s.github.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("github token exchange: %w", err)
	}

	info, err := s.fetchGitHubUser(ctx, token.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch github user info: %w", err)
	}

	user, err := s.users.Upsert(ctx, *info)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert github user: %w", err)
	}

	if err := s.connections.Upsert(ctx, domain.GitHubConnection{
		UserID:       user.ID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}); err != nil {
		return nil, nil, fmt.Errorf("store github connection: %w", err)
	}

	pair, err := s.generateTokenPair(user.ID)
	if err != nil {
		return nil, nil, err
	}

	return user, pair, nil
}

// ValidateToken validates a JWT access token and returns the user ID.
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	return s.parseToken(tokenString, "access")
}

// RefreshAccessToken validates a refresh token and returns a new token pair.
func (s *AuthService) RefreshAccessToken(refreshToken string) (*TokenPair, error) {
	userID, err := s.parseToken(refreshToken, "refresh")
	if err != nil {
		return nil, err
	}
	return s.generateTokenPair(userID)
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *AuthService) parseToken(tokenString, wantType string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: parse %s token: %v", domain.ErrUnauthorized, wantType, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", domain.ErrUnauthorized
	}

	tokenType, _ := claims["type"].(string)
	if tokenType != wantType {
		return "", domain.ErrUnauthorized
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return "", domain.ErrUnauthorized
	}

	return userID, nil
}

func (s *AuthService) generateTokenPair(userID string) (*TokenPair, error) {
	now := time.Now()

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"type": "access",
		"iat":  now.Unix(),
		"exp":  now.Add(15 * time.Minute).Unix(),
	})
	accessStr, err := accessToken.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"type": "refresh",
		"iat":  now.Unix(),
		"exp":  now.Add(7 * 24 * time.Hour).Unix(),
	})
	refreshStr, err := refreshToken.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
	}, nil
}

func (s *AuthService) fetchGitHubUser(ctx context.Context, accessToken string) (*domain.User, error) {
	client, err := github.NewClient(ctx, accessToken, s.apiURL)
	if err != nil {
		return nil, err
	}

	ghUser, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("get authenticated user: %w", err)
	}

	user := &domain.User{
		GitHubID:    ghUser.GetID(),
		Login:       ghUser.GetLogin(),
		Email:       ghUser.GetEmail(),
		DisplayName: ghUser.GetName(),
		AvatarURL:   strPtr(ghUser.GetAvatarURL()),
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Login
	}

	if user.Email == "" {
		emails, _, err := client.Users.ListEmails(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("list github emails: %w", err)
		}
		for _, e := range emails {
			if e.GetPrimary() {
				user.Email = e.GetEmail()
				break
			}
		}
		if user.Email == "" && len(emails) > 0 {
			user.Email = emails[0].GetEmail()
		}
	}

	return user, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
