package database

import "context"

type contextKey string

const (
	// UserScopeKey is the context key for the user-scoped database connection.
	UserScopeKey contextKey = "userScope"
)

// GetUserScope retrieves the user-scoped database connection from context.
// Returns nil and false if not present.
func GetUserScope(ctx context.Context) (*UserScope, bool) {
	scope, ok := ctx.Value(UserScopeKey).(*UserScope)
	return scope, ok
}

// SetUserScope stores the user-scoped database connection in context.
func SetUserScope(ctx context.Context, scope *UserScope) context.Context {
	return context.WithValue(ctx, UserScopeKey, scope)
}

// UserScopeProvider creates user-scoped contexts outside HTTP middleware (MCP tools, CLIs).
type UserScopeProvider struct {
	db *DB
}

// NewUserScopeProvider creates a UserScopeProvider for the given database.
func NewUserScopeProvider(db *DB) *UserScopeProvider {
	return &UserScopeProvider{db: db}
}

// WithUserScope returns a context with a user scope set.
// The cleanup function must be called when the scope is no longer needed.
func (p *UserScopeProvider) WithUserScope(ctx context.Context, userID string) (context.Context, func(), error) {
	scope, err := p.db.WithUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return SetUserScope(ctx, scope), func() { scope.Close() }, nil
}
