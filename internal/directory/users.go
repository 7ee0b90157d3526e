package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/meshcall/internal/domain"
)

var ErrUserExists = errors.New("user already exists")

// CreateUser registers a profile. An empty id gets a generated one; tokens
// issued elsewhere carry the id in their subject, so callers may pin it.
func (s *Store) CreateUser(ctx context.Context, id domain.UserID, username, email string) (domain.User, error) {
	u, err := domain.NewUser(username, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if id != "" {
		u.ID = id
	}
	if len(u.ID) > domain.MaxUserIDLen {
		return domain.User{}, fmt.Errorf("%w: user id too long", domain.ErrInvalidPayload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email) VALUES (?, ?, ?)`,
		u.ID, u.Username, u.Email,
	); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.User{}, fmt.Errorf("%w: %s", ErrUserExists, u.ID)
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return *u, nil
}

func (s *Store) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u domain.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return u, fmt.Errorf("%w: %s", domain.ErrUserNotFound, id)
	}
	if err != nil {
		return u, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ResolveMany loads every known profile among ids in one query. Unknown ids
// are left out of the result.
func (s *Store) ResolveMany(ctx context.Context, ids []domain.UserID) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	b.WriteString(`SELECT id, username, email FROM users WHERE id IN (`)
	b.WriteString(placeholders(len(ids)))
	b.WriteString(`) ORDER BY id`)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0, len(ids))
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
