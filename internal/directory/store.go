// Package directory is the SQLite-backed room and user directory. It owns the
// authoritative room records and enforces capacity and membership rules.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store implements core.RoomDirectory and core.UserDirectory.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the database at path. ":memory:" keeps everything in
// process, mostly for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: writers are serialized, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			username   TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rooms (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			max_participants INTEGER NOT NULL DEFAULT 4,
			created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS participants (
			room_id   TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
			user_id   TEXT NOT NULL,
			joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (room_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS participants_user ON participants(user_id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create participants table: %w", err)
	}

	log.Info().Str("module", "directory").Str("path", path).Msg("database opened")
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRoom inserts a new room with a generated id. maxParticipants <= 0
// means domain.DefaultMaxParticipants.
func (s *Store) CreateRoom(ctx context.Context, name string, maxParticipants int) (domain.Room, error) {
	if maxParticipants <= 0 {
		maxParticipants = domain.DefaultMaxParticipants
	}
	if err := domain.ValidateRoom(name, maxParticipants); err != nil {
		return domain.Room{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room := domain.Room{
		ID:              domain.RoomID(uuid.NewString()),
		Name:            name,
		MaxParticipants: maxParticipants,
		Participants:    []domain.UserID{},
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, max_participants) VALUES (?, ?, ?)`,
		room.ID, room.Name, room.MaxParticipants,
	); err != nil {
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// GetRoom returns the room with its current participants.
func (s *Store) GetRoom(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRoom(ctx, s.db, id)
}

// ListRooms returns every room, oldest first.
func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM rooms ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	var ids []domain.RoomID
	for rows.Next() {
		var id domain.RoomID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rooms := make([]domain.Room, 0, len(ids))
	for _, id := range ids {
		r, err := s.getRoom(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, nil
}

// AddParticipant adds user to room. The capacity check and the insert run in
// one transaction under the write lock, so concurrent joins cannot overfill.
func (s *Store) AddParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) ([]domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	r, err := s.getRoom(ctx, tx, room)
	if err != nil {
		return nil, err
	}
	if r.HasParticipant(user) {
		return nil, fmt.Errorf("%w: %s in %s", domain.ErrAlreadyMember, user, room)
	}
	if len(r.Participants) >= r.MaxParticipants {
		return nil, fmt.Errorf("%w (%d)", domain.ErrCapacityExceeded, r.MaxParticipants)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO participants (room_id, user_id) VALUES (?, ?)`, room, user,
	); err != nil {
		return nil, fmt.Errorf("add participant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return append(r.Participants, user), nil
}

func (s *Store) RemoveParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) ([]domain.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.getRoom(ctx, tx, room); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM participants WHERE room_id = ? AND user_id = ?`, room, user,
	)
	if err != nil {
		return nil, fmt.Errorf("remove participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s in %s", domain.ErrNotMember, user, room)
	}
	left, err := participants(ctx, tx, room)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return left, nil
}

func (s *Store) Participants(ctx context.Context, room domain.RoomID) ([]domain.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, err := s.getRoom(ctx, s.db, room)
	if err != nil {
		return nil, err
	}
	return r.Participants, nil
}

func (s *Store) FindRoomsForUser(ctx context.Context, user domain.UserID) ([]domain.RoomID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT room_id FROM participants WHERE user_id = ? ORDER BY room_id`, user)
	if err != nil {
		return nil, fmt.Errorf("find rooms: %w", err)
	}
	defer rows.Close()

	rooms := []domain.RoomID{}
	for rows.Next() {
		var id domain.RoomID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		rooms = append(rooms, id)
	}
	return rooms, rows.Err()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getRoom(ctx context.Context, q querier, id domain.RoomID) (domain.Room, error) {
	var r domain.Room
	err := q.QueryRowContext(ctx,
		`SELECT id, name, max_participants FROM rooms WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.MaxParticipants)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	if err != nil {
		return r, fmt.Errorf("get room: %w", err)
	}
	r.Participants, err = participants(ctx, q, id)
	return r, err
}

func participants(ctx context.Context, q querier, room domain.RoomID) ([]domain.UserID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM participants WHERE room_id = ? ORDER BY joined_at, user_id`, room)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	out := []domain.UserID{}
	for rows.Next() {
		var id domain.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
