package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsdeck/internal/domain"
	"opsdeck/internal/secrets"
)

// Repo is the sqlite-backed store. Box decrypts credential columns on read;
// the core treats service configs as read-only.
type Repo struct {
	DB  *sql.DB
	Box secrets.Box
}

var ErrNotFound = errors.New("not found")

// ErrDuplicate marks a write rejected by a uniqueness constraint.
var ErrDuplicate = errors.New("already exists")

func translateUnique(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%v: %w", err, ErrDuplicate)
	}
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UpsertServiceConfig stores one integration row, sealing the credential
// fields before they touch disk.
func (r Repo) UpsertServiceConfig(ctx context.Context, cfg domain.ServiceConfig) error {
	apiKey, err := r.Box.Encrypt(cfg.APIKey)
	if err != nil {
		return err
	}
	apiSecret, err := r.Box.Encrypt(cfg.APISecret)
	if err != nil {
		return err
	}
	username, err := r.Box.Encrypt(cfg.Username)
	if err != nil {
		return err
	}
	password, err := r.Box.Encrypt(cfg.Password)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO service_configs(service,base_url,api_key,api_secret,username,password,updated_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT(service) DO UPDATE SET base_url=excluded.base_url, api_key=excluded.api_key,
api_secret=excluded.api_secret, username=excluded.username, password=excluded.password, updated_at=excluded.updated_at`,
		cfg.Service, cfg.BaseURL, nullable(apiKey), nullable(apiSecret), nullable(username), nullable(password), now())
	return err
}

// GetServiceConfig returns one integration row with credentials decrypted.
func (r Repo) GetServiceConfig(ctx context.Context, service string) (domain.ServiceConfig, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT service,base_url,COALESCE(api_key,''),COALESCE(api_secret,''),COALESCE(username,''),COALESCE(password,''),updated_at
FROM service_configs WHERE service=?`, service)
	return r.scanServiceConfig(row.Scan)
}

// ActiveServiceConfigs returns every configured service with credentials
// decrypted. A field that fails to decrypt comes back empty, never fatal.
func (r Repo) ActiveServiceConfigs(ctx context.Context) ([]domain.ServiceConfig, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT service,base_url,COALESCE(api_key,''),COALESCE(api_secret,''),COALESCE(username,''),COALESCE(password,''),updated_at
FROM service_configs ORDER BY service`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ServiceConfig
	for rows.Next() {
		cfg, err := r.scanServiceConfig(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, cfg)
	}
	return res, rows.Err()
}

func (r Repo) scanServiceConfig(scan func(...any) error) (domain.ServiceConfig, error) {
	var cfg domain.ServiceConfig
	err := scan(&cfg.Service, &cfg.BaseURL, &cfg.APIKey, &cfg.APISecret, &cfg.Username, &cfg.Password, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return cfg, ErrNotFound
	}
	if err != nil {
		return cfg, err
	}
	cfg.APIKey = r.Box.Decrypt(cfg.APIKey)
	cfg.APISecret = r.Box.Decrypt(cfg.APISecret)
	cfg.Username = r.Box.Decrypt(cfg.Username)
	cfg.Password = r.Box.Decrypt(cfg.Password)
	return cfg, nil
}

// RawServiceConfig reads a row without decrypting, for diagnostics.
func (r Repo) RawServiceConfig(ctx context.Context, service string) (domain.ServiceConfig, error) {
	var cfg domain.ServiceConfig
	err := r.DB.QueryRowContext(ctx, `SELECT service,base_url,COALESCE(api_key,''),COALESCE(api_secret,''),COALESCE(username,''),COALESCE(password,''),updated_at
FROM service_configs WHERE service=?`, service).
		Scan(&cfg.Service, &cfg.BaseURL, &cfg.APIKey, &cfg.APISecret, &cfg.Username, &cfg.Password, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return cfg, ErrNotFound
	}
	return cfg, err
}

func (r Repo) DeleteServiceConfig(ctx context.Context, service string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM service_configs WHERE service=?`, service)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
