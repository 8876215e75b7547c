// Package postgres loads the inventory folder hierarchy from the
// application's PostgreSQL database into an in-memory inventory.Tree.
// The sync core never writes here; the hierarchy is owned by the
// inventory application.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq"

	"github.com/marketmirror/marketmirror/internal/inventory"
	"github.com/marketmirror/marketmirror/internal/logging"
	"go.uber.org/zap"
)

// Store reads the folder hierarchy from PostgreSQL.
type Store struct {
	db *sql.DB
}

type folderRow struct {
	ID       string
	Name     string
	ParentID sql.NullString
}

// New opens a connection to the inventory database.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BuildTree loads the full folder hierarchy and item placement.
func (s *Store) BuildTree(ctx context.Context) (*inventory.Tree, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, parent_id FROM folders WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("query folders: %w", err)
	}
	defer rows.Close()

	var folders []folderRow
	for rows.Next() {
		var row folderRow
		if err := rows.Scan(&row.ID, &row.Name, &row.ParentID); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate folders: %w", err)
	}

	tree := inventory.NewTree()
	for _, row := range topoOrder(folders) {
		parent := ""
		if row.ParentID.Valid {
			parent = row.ParentID.String
		}
		if err := tree.AddFolder(row.ID, parent, row.Name); err != nil {
			// Orphaned rows are attached at the root rather than dropped.
			logging.Warn("orphan folder row", zap.String("id", row.ID), zap.Error(err))
			if err := tree.AddFolder(row.ID, "", row.Name); err != nil {
				return nil, fmt.Errorf("add folder %s: %w", row.ID, err)
			}
		}
	}

	itemRows, err := s.db.QueryContext(ctx,
		`SELECT id, folder_id FROM items WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var id, folderID string
		if err := itemRows.Scan(&id, &folderID); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if err := tree.AddItem(id, folderID); err != nil {
			logging.Warn("item in unknown folder", zap.String("id", id), zap.String("folder", folderID))
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	logging.Info("inventory hierarchy loaded",
		zap.Int("folders", tree.FolderCount()),
		zap.Duration("duration", time.Since(start)))
	return tree, nil
}

// topoOrder sorts rows so parents come before their children, which is
// what Tree.AddFolder requires.
func topoOrder(rows []folderRow) []folderRow {
	byID := make(map[string]folderRow, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	depth := func(row folderRow) int {
		d := 0
		current := row
		for current.ParentID.Valid {
			next, ok := byID[current.ParentID.String]
			if !ok || d > len(rows) {
				break
			}
			current = next
			d++
		}
		return d
	}

	out := append([]folderRow(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		return depth(out[i]) < depth(out[j])
	})
	return out
}
