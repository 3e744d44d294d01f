// Package auth models the permission scopes granted to a run and mints the
// short-lived tokens the deploy stage presents to the pages host.
package auth

import (
	"fmt"

	"git.home.luguber.info/inful/pagepress/internal/config"
	apperrors "git.home.luguber.info/inful/pagepress/internal/errors"
)

// Scope is a named capability a run may hold.
type Scope string

const (
	ScopeContents Scope = "contents"
	ScopePages    Scope = "pages"
	ScopeIDToken  Scope = "id_token"
)

// Level is the access level granted for a scope.
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelWrite
)

func (l Level) String() string {
	switch l {
	case LevelRead:
		return "read"
	case LevelWrite:
		return "write"
	default:
		return "none"
	}
}

// ScopeSet holds the levels granted to a run for every scope.
type ScopeSet map[Scope]Level

// ScopesFromConfig builds the run's scope set from validated configuration.
func ScopesFromConfig(p config.PermissionsConfig) ScopeSet {
	return ScopeSet{
		ScopeContents: parseLevel(p.Contents),
		ScopePages:    parseLevel(p.Pages),
		ScopeIDToken:  parseLevel(p.IDToken),
	}
}

func parseLevel(value string) Level {
	switch value {
	case "read":
		return LevelRead
	case "write":
		return LevelWrite
	default:
		return LevelNone
	}
}

// Require returns an error unless the set grants at least the given level.
func (s ScopeSet) Require(scope Scope, level Level) error {
	granted := s[scope]
	if granted >= level {
		return nil
	}
	return apperrors.New(apperrors.CategoryAuth, apperrors.SeverityFatal,
		fmt.Sprintf("scope %s requires %s access, granted %s", scope, level, granted)).
		WithContext("scope", string(scope))
}

// Allows reports whether the set grants at least the given level.
func (s ScopeSet) Allows(scope Scope, level Level) bool {
	return s[scope] >= level
}
