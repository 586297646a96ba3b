// internal/storage/storage.go
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"wildlens/internal/models"
)

// Storage owns the connection pool for the images table. It is created once
// by the hosting process and shared by all handlers.
type Storage struct {
	pool *pgxpool.Pool
}

// Connect opens a bounded pool without touching the schema. Callers beyond
// maxConns wait for a free connection until their context ends.
func Connect(ctx context.Context, dsn string, maxConns int32) (*Storage, error) {
	const op = "storage.Connect"

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{pool: pool}, nil
}

// NewStorage connects and applies pending migrations.
func NewStorage(ctx context.Context, dsn string, maxConns int32) (*Storage, error) {
	const op = "storage.NewStorage"

	s, err := Connect(ctx, dsn, maxConns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// goose works on database/sql; borrow the pool through pgx's adapter.
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	if err := runMigrations(db); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertImage stores img and returns the generated id. The connection is
// released on every path.
func (s *Storage) InsertImage(ctx context.Context, img *models.Image) (int64, error) {
	const op = "storage.InsertImage"

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: acquire: %w", op, err)
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx,
		`INSERT INTO images (title, description, category, location, photographer, s3_url, s3_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		img.Title, img.Description, img.Category, img.Location, img.Photographer, img.S3URL, img.S3Key,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// ListImages returns every row, newest first. An empty table gives an empty,
// non-nil slice.
func (s *Storage) ListImages(ctx context.Context) ([]models.Image, error) {
	const op = "storage.ListImages"

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, description, category, location, photographer, s3_url, s3_key
		 FROM images ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	images := make([]models.Image, 0)
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.Title, &img.Description, &img.Category,
			&img.Location, &img.Photographer, &img.S3URL, &img.S3Key); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return images, nil
}
