package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
)

// DeployToken is a short-lived credential minted for a single run's deploy
// stage. It is only minted when the run holds id_token write and pages write.
type DeployToken struct {
	Value     string
	RunID     string
	ExpiresAt time.Time
}

// Expired reports whether the token's lifetime has passed.
func (t *DeployToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenIssuer mints and validates deploy tokens.
type TokenIssuer struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]*DeployToken
	now    func() time.Time
}

// NewTokenIssuer creates an issuer with the given token lifetime.
func NewTokenIssuer(ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{
		ttl:    ttl,
		tokens: make(map[string]*DeployToken),
		now:    time.Now,
	}
}

// Mint issues a deploy token for the run after checking its scopes.
func (i *TokenIssuer) Mint(runID string, scopes ScopeSet) (*DeployToken, error) {
	if err := scopes.Require(ScopeIDToken, LevelWrite); err != nil {
		return nil, err
	}
	if err := scopes.Require(ScopePages, LevelWrite); err != nil {
		return nil, err
	}

	token := &DeployToken{
		Value:     uuid.New().String(),
		RunID:     runID,
		ExpiresAt: i.now().Add(i.ttl),
	}

	i.mu.Lock()
	i.tokens[token.Value] = token
	i.mu.Unlock()

	return token, nil
}

// Validate checks the token value and returns the run it was minted for.
// Expired tokens are removed and rejected.
func (i *TokenIssuer) Validate(value string) (*DeployToken, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	token, ok := i.tokens[value]
	if !ok {
		return nil, apperrors.New(apperrors.CategoryAuth, apperrors.SeverityFatal, "unknown deploy token")
	}
	if token.Expired(i.now()) {
		delete(i.tokens, value)
		return nil, apperrors.New(apperrors.CategoryAuth, apperrors.SeverityFatal, "deploy token expired").
			WithContext("run_id", token.RunID)
	}
	return token, nil
}

// Revoke removes a token once its run completes.
func (i *TokenIssuer) Revoke(value string) {
	i.mu.Lock()
	delete(i.tokens, value)
	i.mu.Unlock()
}
