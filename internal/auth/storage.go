package auth

import (
	"context"

	"github.com/jmoiron/sqlx"

	"pharmacy/m/domain"
	"pharmacy/m/internal/database"
)

type Storage interface {
	InsertUser(ctx context.Context, user *domain.User) error
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) (bool, error)
}

type SQLStorage struct {
	db *sqlx.DB
}

func NewSQLStorage(db *sqlx.DB) *SQLStorage {
	return &SQLStorage{db: db}
}

const userColumns = `id, username, password, role, is_active, created_at`

func (s *SQLStorage) InsertUser(ctx context.Context, user *domain.User) error {
	query := s.db.Rebind(`INSERT INTO users (username, password, role, is_active, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRowxContext(ctx, query, user.Username, user.Password, user.Role, user.IsActive, user.CreatedAt).Scan(&user.ID)
	return database.Classify(err)
}

func (s *SQLStorage) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	var user domain.User
	if err := s.db.GetContext(ctx, &user, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username); err != nil {
		return domain.User{}, database.Classify(err)
	}
	return user, nil
}

func (s *SQLStorage) GetByID(ctx context.Context, id int64) (domain.User, error) {
	var user domain.User
	if err := s.db.GetContext(ctx, &user, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id); err != nil {
		return domain.User{}, database.Classify(err)
	}
	return user, nil
}

func (s *SQLStorage) UpdatePassword(ctx context.Context, id int64, hash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET password = ? WHERE id = ?`), hash, id)
	if err != nil {
		return false, database.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
