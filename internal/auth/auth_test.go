package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagepress/internal/config"
	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
)

func writeScopes() ScopeSet {
	return ScopesFromConfig(config.PermissionsConfig{
		Contents: "read",
		Pages:    "write",
		IDToken:  "write",
	})
}

func TestScopesFromConfig(t *testing.T) {
	scopes := writeScopes()
	assert.Equal(t, LevelRead, scopes[ScopeContents])
	assert.Equal(t, LevelWrite, scopes[ScopePages])
	assert.Equal(t, LevelWrite, scopes[ScopeIDToken])

	empty := ScopesFromConfig(config.PermissionsConfig{})
	assert.Equal(t, LevelNone, empty[ScopeContents])
}

func TestRequire(t *testing.T) {
	scopes := writeScopes()

	assert.NoError(t, scopes.Require(ScopeContents, LevelRead))
	assert.NoError(t, scopes.Require(ScopePages, LevelWrite))

	err := scopes.Require(ScopeContents, LevelWrite)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryAuth))
}

func TestMintRequiresWriteScopes(t *testing.T) {
	issuer := NewTokenIssuer(time.Minute)

	_, err := issuer.Mint("run-1", ScopesFromConfig(config.PermissionsConfig{
		Contents: "read", Pages: "write", IDToken: "read",
	}))
	require.Error(t, err)

	token, err := issuer.Mint("run-1", writeScopes())
	require.NoError(t, err)
	assert.NotEmpty(t, token.Value)
	assert.Equal(t, "run-1", token.RunID)
}

func TestValidateAndRevoke(t *testing.T) {
	issuer := NewTokenIssuer(time.Minute)
	token, err := issuer.Mint("run-2", writeScopes())
	require.NoError(t, err)

	got, err := issuer.Validate(token.Value)
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.RunID)

	_, err = issuer.Validate("not-a-token")
	require.Error(t, err)

	issuer.Revoke(token.Value)
	_, err = issuer.Validate(token.Value)
	require.Error(t, err)
}

func TestValidateExpired(t *testing.T) {
	issuer := NewTokenIssuer(time.Minute)
	token, err := issuer.Mint("run-3", writeScopes())
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = issuer.Validate(token.Value)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryAuth))
}
