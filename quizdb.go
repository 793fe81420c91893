package ragquiz

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the optional relational mirror for validated questions. Inserts are
// forward-only; there is no delete or update path.
type DB struct {
	db *sql.DB
}

// OpenDB opens the database and enforces foreign keys.
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// CreateTables creates the schema if it does not exist. test_answers rows
// reference their test_questions parent by uuid.
func (d *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS test_questions (
			question TEXT NOT NULL,
			question_uuid TEXT PRIMARY KEY,
			explanation TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS test_answers (
			question_uuid TEXT NOT NULL,
			option TEXT NOT NULL,
			true_or_false INTEGER NOT NULL,
			FOREIGN KEY (question_uuid) REFERENCES test_questions(question_uuid)
		)`,
	}
	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// InsertValidated records one accepted question: the parent row first, then
// one child row per option with its is-correct flag. The whole insert is one
// transaction so the FK constraint can never see an orphaned child. Returns
// the generated question uuid.
func (d *DB) InsertValidated(question string, options []string, answer, explanation string) (string, error) {
	questionUUID := uuid.NewString()

	correctIdx := -1
	norm := strings.ToLower(strings.TrimSpace(answer))
	for i, opt := range options {
		if norm == strings.ToLower(strings.TrimSpace(opt)) {
			correctIdx = i
			break
		}
	}

	tx, err := d.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO test_questions (question, question_uuid, explanation) VALUES (?, ?, ?)",
		question, questionUUID, explanation,
	); err != nil {
		return "", fmt.Errorf("failed to insert question: %w", err)
	}
	for i, opt := range options {
		isTrue := 0
		if i == correctIdx {
			isTrue = 1
		}
		if _, err := tx.Exec(
			"INSERT INTO test_answers (question_uuid, option, true_or_false) VALUES (?, ?, ?)",
			questionUUID, opt, isTrue,
		); err != nil {
			return "", fmt.Errorf("failed to insert answer option: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return questionUUID, nil
}
