// Package postgres reads and writes the account service's user rows: the
// presence columns on call join/leave and the username directory.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const DefaultUserTable = "auth_app_user"

var safeIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db    DB
	table string
}

var (
	_ core.Presence      = (*Store)(nil)
	_ core.UserDirectory = (*Store)(nil)
)

func NewStore(db DB, table string) (*Store, error) {
	if table == "" {
		table = DefaultUserTable
	}
	if !safeIdentRe.MatchString(table) {
		return nil, fmt.Errorf("invalid user table name %q", table)
	}
	return &Store{db: db, table: table}, nil
}

func (s *Store) SetRoom(ctx context.Context, user domain.UserID, room domain.RoomID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE `+s.table+`
		SET is_online = TRUE, current_room = $2, last_seen = NOW()
		WHERE id::text = $1
	`, string(user), string(room))
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrUnknownUser
	}
	return nil
}

// Clear leaves the row alone when the user has since moved to another room.
func (s *Store) Clear(ctx context.Context, user domain.UserID, room domain.RoomID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE `+s.table+`
		SET is_online = FALSE, current_room = NULL, last_seen = NOW()
		WHERE id::text = $1 AND current_room = $2
	`, string(user), string(room))
	if err != nil {
		return fmt.Errorf("clear presence: %w", err)
	}
	return nil
}

func (s *Store) Lookup(ctx context.Context, id domain.UserID) (domain.Identity, error) {
	var username string
	err := s.db.QueryRow(ctx, `
		SELECT username FROM `+s.table+`
		WHERE id::text = $1 AND is_active = TRUE
	`, string(id)).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, core.ErrUnknownUser
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	return domain.NewIdentity(id, username)
}
