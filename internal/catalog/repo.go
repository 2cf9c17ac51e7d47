package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("sweet not found")

// Query filters List. Zero values mean "no filter".
type Query struct {
	Name          string
	Category      string
	MinPriceCents int64
	MaxPriceCents int64
}

type Repository interface {
	Create(ctx context.Context, s *Sweet) error
	GetByID(ctx context.Context, id string) (*Sweet, error)
	List(ctx context.Context, q Query) ([]Sweet, error)
	// Update edits descriptive fields and price. It never writes quantity;
	// stock moves only through the ledger.
	Update(ctx context.Context, s *Sweet, updatePrice bool) error
	Delete(ctx context.Context, id string) (bool, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

const sweetCols = `id, name, description, category, image, price_cents, quantity, created_at, updated_at`

func scanSweet(row pgx.Row) (*Sweet, error) {
	var s Sweet
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Category, &s.Image,
		&s.PriceCents, &s.Quantity, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PGRepo) Create(ctx context.Context, s *Sweet) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO sweets (id, name, description, category, image, price_cents, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
	`, s.ID, s.Name, s.Description, s.Category, s.Image, s.PriceCents, s.Quantity)
	if err != nil {
		return fmt.Errorf("create sweet: %w", err)
	}
	return nil
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Sweet, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s, err := scanSweet(r.db.QueryRow(ctx, `SELECT `+sweetCols+` FROM sweets WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sweet: %w", err)
	}
	return s, nil
}

func (r *PGRepo) List(ctx context.Context, q Query) ([]Sweet, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	name := strings.TrimSpace(q.Name)
	rows, err := r.db.Query(ctx, `
		SELECT `+sweetCols+` FROM sweets
		WHERE ($1 = '' OR name ILIKE '%'||$1||'%')
		  AND ($2 = '' OR category = $2)
		  AND ($3::bigint <= 0 OR price_cents >= $3)
		  AND ($4::bigint <= 0 OR price_cents <= $4)
		ORDER BY created_at DESC
	`, name, q.Category, q.MinPriceCents, q.MaxPriceCents)
	if err != nil {
		return nil, fmt.Errorf("list sweets: %w", err)
	}
	defer rows.Close()

	var out []Sweet
	for rows.Next() {
		s, err := scanSweet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *PGRepo) Update(ctx context.Context, s *Sweet, updatePrice bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if updatePrice {
		tag, err := r.db.Exec(ctx, `
			UPDATE sweets
			SET name = COALESCE(NULLIF($2,''), name),
			    description = COALESCE(NULLIF($3,''), description),
			    category = COALESCE(NULLIF($4,''), category),
			    image = COALESCE(NULLIF($5,''), image),
			    price_cents = $6,
			    updated_at = NOW()
			WHERE id = $1
		`, s.ID, s.Name, s.Description, s.Category, s.Image, s.PriceCents)
		if err != nil {
			return fmt.Errorf("update sweet: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE sweets
		SET name = COALESCE(NULLIF($2,''), name),
		    description = COALESCE(NULLIF($3,''), description),
		    category = COALESCE(NULLIF($4,''), category),
		    image = COALESCE(NULLIF($5,''), image),
		    updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.Name, s.Description, s.Category, s.Image)
	if err != nil {
		return fmt.Errorf("update sweet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM sweets WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete sweet: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
