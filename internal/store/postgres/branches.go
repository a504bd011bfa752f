package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/tuklasdigitallabs/qsys2025-working/internal/models"
	"github.com/tuklasdigitallabs/qsys2025-working/internal/store"

	"github.com/jackc/pgx/v5"
)

const branchColumns = "branch_id, name, slug, code, timezone, code_pad_width, active"

// ResolveBranch accepts an id, slug, or branch code and resolves it to
// a branch. Lookup precedence: exact id, uppercased id, lowercased
// slug, uppercased code, then the configured default branch.
func (s *Store) ResolveBranch(ctx context.Context, ref string) (models.Branch, error) {
	ref = strings.TrimSpace(ref)
	if ref != "" {
		branch, err := s.lookupBranch(ctx, ref)
		if err == nil {
			return branch, nil
		}
		if !errors.Is(err, store.ErrBranchNotFound) {
			return models.Branch{}, err
		}
	}

	if s.defaultBranchID != "" {
		branch, err := s.lookupBranch(ctx, s.defaultBranchID)
		if err == nil {
			return branch, nil
		}
		if !errors.Is(err, store.ErrBranchNotFound) {
			return models.Branch{}, err
		}
	}

	return models.Branch{}, store.ErrBranchNotFound
}

func (s *Store) lookupBranch(ctx context.Context, ref string) (models.Branch, error) {
	upper := strings.ToUpper(ref)
	lower := strings.ToLower(ref)

	var branch models.Branch
	row := s.pool.QueryRow(ctx, `
		SELECT `+branchColumns+`
		FROM branches
		WHERE active = TRUE
			AND (branch_id = $1 OR branch_id = $2 OR slug = $3 OR code = $2)
		ORDER BY CASE
			WHEN branch_id = $1 THEN 0
			WHEN branch_id = $2 THEN 1
			WHEN slug = $3 THEN 2
			ELSE 3
		END
		LIMIT 1
	`, ref, upper, lower)
	if err := row.Scan(&branch.BranchID, &branch.Name, &branch.Slug, &branch.Code, &branch.Timezone, &branch.CodePadWidth, &branch.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Branch{}, store.ErrBranchNotFound
		}
		return models.Branch{}, err
	}
	return branch, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]models.Branch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+branchColumns+`
		FROM branches
		WHERE active = TRUE
		ORDER BY code ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []models.Branch
	for rows.Next() {
		var branch models.Branch
		if err := rows.Scan(&branch.BranchID, &branch.Name, &branch.Slug, &branch.Code, &branch.Timezone, &branch.CodePadWidth, &branch.Active); err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func getBranch(ctx context.Context, tx pgx.Tx, branchID string) (models.Branch, error) {
	var branch models.Branch
	row := tx.QueryRow(ctx, `
		SELECT `+branchColumns+`
		FROM branches
		WHERE branch_id = $1 AND active = TRUE
	`, branchID)
	if err := row.Scan(&branch.BranchID, &branch.Name, &branch.Slug, &branch.Code, &branch.Timezone, &branch.CodePadWidth, &branch.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Branch{}, store.ErrBranchNotFound
		}
		return models.Branch{}, err
	}
	return branch, nil
}
