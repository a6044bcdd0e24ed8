package migrate

import (
	"context"
	"fmt"
	"nwsl-backend/internal/components/db"
)

// NotNullColumn describes a column added to an existing table that must end
// up with a value on every row.
type NotNullColumn struct {
	Name   string
	Table  string
	Column string
	// Type is the sqlite column type, ex. INTEGER.
	Type string
	// Check is an optional CHECK expression on the new column.
	Check string
	// Backfill is the statement filling the column on existing rows.
	Backfill string
	// Index creates an index on the new column.
	Index bool
}

func (c NotNullColumn) insertTrigger() string {
	return fmt.Sprintf("%s_%s_not_null_insert", c.Table, c.Column)
}

func (c NotNullColumn) updateTrigger() string {
	return fmt.Sprintf("%s_%s_not_null_update", c.Table, c.Column)
}

func (c NotNullColumn) index() string {
	return fmt.Sprintf("%s_%s_idx", c.Table, c.Column)
}

// AddNotNullColumn builds the step that adds a nullable column, backfills it,
// verifies that no row was left without a value and then enforces NOT NULL
// for every later write. sqlite cannot alter an existing column to NOT NULL,
// the enforcement is done with triggers raising the same error a NOT NULL
// column would.
func AddNotNullColumn(c NotNullColumn) Step {
	return Step{
		Name: c.Name,
		Precondition: func(ctx context.Context, tx *db.Queries) (bool, error) {
			exists, err := tx.ColumnExists(ctx, c.Table, c.Column)
			return !exists, err
		},
		Forward: func(ctx context.Context, tx *db.Queries) error {
			def := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.Table, c.Column, c.Type)
			if c.Check != "" {
				def += fmt.Sprintf(" CHECK (%s)", c.Check)
			}
			_, err := tx.Exec(ctx, def)
			if err != nil {
				return err
			}
			if c.Index {
				_, err = tx.Exec(ctx, fmt.Sprintf(
					"CREATE INDEX %s ON %s(%s)",
					c.index(), c.Table, c.Column,
				))
			}
			return err
		},
		Backfill: func(ctx context.Context, tx *db.Queries) error {
			_, err := tx.Exec(ctx, c.Backfill)
			return err
		},
		Postcondition: func(ctx context.Context, tx *db.Queries) error {
			missing, err := tx.QueryInt(ctx, fmt.Sprintf(
				"SELECT COUNT(*) FROM %s WHERE %s IS NULL",
				c.Table, c.Column,
			))
			if err != nil {
				return err
			}
			if missing > 0 {
				return fmt.Errorf(
					"%d rows of %s have no %s: %w",
					missing, c.Table, c.Column, ErrBackfillIncomplete,
				)
			}
			return nil
		},
		Finalize: func(ctx context.Context, tx *db.Queries) error {
			raise := fmt.Sprintf("SELECT RAISE(ABORT, 'NOT NULL constraint failed: %s.%s');", c.Table, c.Column)
			_, err := tx.Exec(ctx, fmt.Sprintf(
				"CREATE TRIGGER %s BEFORE INSERT ON %s WHEN NEW.%s IS NULL BEGIN %s END",
				c.insertTrigger(), c.Table, c.Column, raise,
			))
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, fmt.Sprintf(
				"CREATE TRIGGER %s BEFORE UPDATE OF %s ON %s WHEN NEW.%s IS NULL BEGIN %s END",
				c.updateTrigger(), c.Column, c.Table, c.Column, raise,
			))
			return err
		},
		Rollback: func(ctx context.Context, tx *db.Queries) error {
			statements := []string{
				fmt.Sprintf("DROP TRIGGER IF EXISTS %s", c.insertTrigger()),
				fmt.Sprintf("DROP TRIGGER IF EXISTS %s", c.updateTrigger()),
				fmt.Sprintf("DROP INDEX IF EXISTS %s", c.index()),
				fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", c.Table, c.Column),
			}
			for _, stmt := range statements {
				_, err := tx.Exec(ctx, stmt)
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// RenameColumn builds the step renaming a column in place.
func RenameColumn(name, table, from, to string) Step {
	rename := func(from, to string) StepFunc {
		return func(ctx context.Context, tx *db.Queries) error {
			_, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, from, to))
			return err
		}
	}
	return Step{
		Name: name,
		Precondition: func(ctx context.Context, tx *db.Queries) (bool, error) {
			return tx.ColumnExists(ctx, table, from)
		},
		Forward: rename(from, to),
		Postcondition: func(ctx context.Context, tx *db.Queries) error {
			exists, err := tx.ColumnExists(ctx, table, to)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("column %s.%s is missing after rename", table, to)
			}
			return nil
		},
		Rollback: rename(to, from),
	}
}
