package repo

import (
	"context"
	"database/sql"

	"opsdeck/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,username,password_hash,role,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.CreatedAt)
	return translateUnique(err)
}

func (r Repo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,username,password_hash,role,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,username,password_hash,role,created_at FROM users WHERE username=?`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

func (r Repo) UpsertUserPrefs(ctx context.Context, userID, prefsJSON string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO user_prefs(user_id,prefs_json,updated_at) VALUES (?,?,?)
ON CONFLICT(user_id) DO UPDATE SET prefs_json=excluded.prefs_json, updated_at=excluded.updated_at`,
		userID, prefsJSON, now())
	return err
}

func (r Repo) GetUserPrefs(ctx context.Context, userID string) (domain.UserPrefs, error) {
	var p domain.UserPrefs
	err := r.DB.QueryRowContext(ctx, `SELECT user_id,prefs_json,updated_at FROM user_prefs WHERE user_id=?`, userID).
		Scan(&p.UserID, &p.PrefsJSON, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.UserPrefs{UserID: userID, PrefsJSON: "{}"}, nil
	}
	return p, err
}
