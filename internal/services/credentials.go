package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"vidgen-backend/internal/models"
	"vidgen-backend/internal/repository"
)

const youtubeUploadScope = "https://www.googleapis.com/auth/youtube.upload"

type tokenStore interface {
	GetByUser(ctx context.Context, userID string) (*models.OAuthToken, error)
	UpdateAccessToken(ctx context.Context, userID, accessToken string, expiresAt time.Time) error
}

// CredentialProvider turns a user's stored Google OAuth token into a token
// source for the YouTube API. Sources are cached per user and rebuilt from
// the database only after the cached token has expired.
type CredentialProvider struct {
	tokens tokenStore
	oauth  *oauth2.Config

	// refreshCtx carries the HTTP client used for token refreshes; it must
	// outlive any single request.
	refreshCtx context.Context

	mu    sync.Mutex
	cache map[string]*persistingTokenSource
	group singleflight.Group
	now   func() time.Time
}

func NewCredentialProvider(tokens tokenStore, clientID, clientSecret string) *CredentialProvider {
	return &CredentialProvider{
		tokens: tokens,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{youtubeUploadScope},
		},
		refreshCtx: context.Background(),
		cache:      make(map[string]*persistingTokenSource),
		now:        time.Now,
	}
}

// Resolve returns a token source for userID, or NotLinkedError when the user
// has never linked an account or the stored token cannot be refreshed.
func (p *CredentialProvider) Resolve(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	if src := p.cached(userID); src != nil {
		return src, nil
	}

	v, err, _ := p.group.Do(userID, func() (interface{}, error) {
		return p.build(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*persistingTokenSource), nil
}

func (p *CredentialProvider) cached(userID string) *persistingTokenSource {
	p.mu.Lock()
	defer p.mu.Unlock()

	src, ok := p.cache[userID]
	if !ok {
		return nil
	}
	if src.expired(p.now()) {
		delete(p.cache, userID)
		return nil
	}
	return src
}

func (p *CredentialProvider) build(ctx context.Context, userID string) (*persistingTokenSource, error) {
	stored, err := p.tokens.GetByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotLinkedError{UserID: userID}
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load oauth token", Err: err}
	}

	tok := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    "Bearer",
	}
	if stored.ExpiresAt != nil {
		// already normalized to UTC by the repository
		tok.Expiry = stored.ExpiresAt.UTC()
	}

	if tok.RefreshToken == "" && !tok.Expiry.IsZero() && !tok.Expiry.After(p.now()) {
		return nil, &NotLinkedError{UserID: userID}
	}

	src := &persistingTokenSource{
		userID: userID,
		inner:  p.oauth.TokenSource(p.refreshCtx, tok),
		tokens: p.tokens,
		last:   tok,
	}
	src.onFailure = func() { p.evict(userID, src) }

	p.mu.Lock()
	p.cache[userID] = src
	p.mu.Unlock()

	return src, nil
}

// evict drops src if it is still the cached source for userID, so the next
// Resolve reloads the token row (the user may have relinked).
func (p *CredentialProvider) evict(userID string, src *persistingTokenSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cache[userID] == src {
		delete(p.cache, userID)
	}
}

// persistingTokenSource writes refreshed access tokens back to the database
// so other instances and restarts pick them up.
type persistingTokenSource struct {
	userID string
	inner  oauth2.TokenSource
	tokens tokenStore

	onFailure func()

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.inner.Token()
	if err != nil {
		if s.onFailure != nil {
			s.onFailure()
		}
		return nil, &UpstreamError{Service: "google-oauth", Err: err}
	}

	s.mu.Lock()
	refreshed := s.last == nil || tok.AccessToken != s.last.AccessToken
	s.last = tok
	s.mu.Unlock()

	if refreshed {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tokens.UpdateAccessToken(ctx, s.userID, tok.AccessToken, tok.Expiry); err != nil {
			log.Warn().Err(err).Str("user_id", s.userID).Msg("failed to persist refreshed token")
		}
	}

	return tok, nil
}

// expired reports whether the latest known token has run out and cannot be
// renewed in place.
func (s *persistingTokenSource) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.last.Expiry.IsZero() {
		return false
	}
	return !s.last.Expiry.After(now) && s.last.RefreshToken == ""
}
