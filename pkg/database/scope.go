package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UserScope wraps a connection tagged with the requesting user and ensures cleanup.
// The connection has app.current_user_id set for the duration of the request.
type UserScope struct {
	Conn   *pgxpool.Conn
	UserID string
}

// Close resets the user setting and releases the connection to the pool.
// This MUST be called so the setting does not leak into the next request.
func (s *UserScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_user_id")
	s.Conn.Release()
}

// WithUser acquires a connection and tags it with the user id.
// The returned UserScope MUST be closed with defer scope.Close().
func (db *DB) WithUser(ctx context.Context, userID string) (*UserScope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, "SELECT set_config('app.current_user_id', $1, false)", userID); err != nil {
		conn.Release()
		return nil, err
	}

	return &UserScope{Conn: conn, UserID: userID}, nil
}
