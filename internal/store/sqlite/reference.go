package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"famrun/internal/models"
	"famrun/internal/store"
)

// PutClaimLocation inserts or replaces a claim location.
func (s *Store) PutClaimLocation(ctx context.Context, loc models.ClaimLocation) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(loc.ID) == "" || strings.TrimSpace(loc.Name) == "" {
		return fmt.Errorf("claim location id and name are required")
	}
	created := loc.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claim_locations (id, name, address, active, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, address = excluded.address, active = excluded.active`,
		loc.ID, loc.Name, loc.Address, boolInt(loc.Active), toMillis(created),
	)
	if err != nil {
		return fmt.Errorf("put claim location: %w", err)
	}
	return nil
}

func (s *Store) GetClaimLocation(ctx context.Context, id string) (models.ClaimLocation, error) {
	if err := s.ready(ctx); err != nil {
		return models.ClaimLocation{}, err
	}
	loc, err := scanLocation(s.db.QueryRowContext(ctx,
		`SELECT id, name, address, active, created_at FROM claim_locations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ClaimLocation{}, store.ErrNotFound
		}
		return models.ClaimLocation{}, fmt.Errorf("get claim location: %w", err)
	}
	return loc, nil
}

func (s *Store) ListClaimLocations(ctx context.Context, activeOnly bool) ([]models.ClaimLocation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT id, name, address, active, created_at FROM claim_locations`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list claim locations: %w", err)
	}
	defer rows.Close()

	out := []models.ClaimLocation{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("list claim locations: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (s *Store) SetClaimLocationActive(ctx context.Context, id string, active bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE claim_locations SET active = ? WHERE id = ?`, boolInt(active), id)
	if err != nil {
		return fmt.Errorf("set claim location active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanLocation(row rowScanner) (models.ClaimLocation, error) {
	var (
		loc       models.ClaimLocation
		active    int
		createdAt int64
	)
	if err := row.Scan(&loc.ID, &loc.Name, &loc.Address, &active, &createdAt); err != nil {
		return models.ClaimLocation{}, err
	}
	loc.Active = active != 0
	loc.CreatedAt = fromMillis(createdAt)
	return loc, nil
}

// PutCategory inserts or replaces a race category and its price.
func (s *Store) PutCategory(ctx context.Context, cat models.Category) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(cat.Name) == "" {
		return fmt.Errorf("category name is required")
	}
	if cat.Price < 0 {
		return fmt.Errorf("category price must not be negative")
	}
	created := cat.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, price, active, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET price = excluded.price, active = excluded.active`,
		cat.Name, cat.Price, boolInt(cat.Active), toMillis(created),
	)
	if err != nil {
		return fmt.Errorf("put category: %w", err)
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, name string) (models.Category, error) {
	if err := s.ready(ctx); err != nil {
		return models.Category{}, err
	}
	cat, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT name, price, active, created_at FROM categories WHERE name = ?`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Category{}, store.ErrNotFound
		}
		return models.Category{}, fmt.Errorf("get category: %w", err)
	}
	return cat, nil
}

func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT name, price, active, created_at FROM categories`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []models.Category{}
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

func scanCategory(row rowScanner) (models.Category, error) {
	var (
		cat       models.Category
		active    int
		createdAt int64
	)
	if err := row.Scan(&cat.Name, &cat.Price, &active, &createdAt); err != nil {
		return models.Category{}, err
	}
	cat.Active = active != 0
	cat.CreatedAt = fromMillis(createdAt)
	return cat, nil
}
