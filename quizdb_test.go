package ragquiz

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "quiz.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateTables())
	return db
}

func TestInsertValidated(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertValidated("What is 2+2?", []string{"3", "4", "5", "6"}, "4", "arithmetic")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var question, explanation string
	err = db.db.QueryRow("SELECT question, explanation FROM test_questions WHERE question_uuid = ?", id).
		Scan(&question, &explanation)
	require.NoError(t, err)
	assert.Equal(t, "What is 2+2?", question)
	assert.Equal(t, "arithmetic", explanation)

	rows, err := db.db.Query("SELECT option, true_or_false FROM test_answers WHERE question_uuid = ? ORDER BY rowid", id)
	require.NoError(t, err)
	defer rows.Close()

	var got []string
	var flags []int
	for rows.Next() {
		var opt string
		var flag int
		require.NoError(t, rows.Scan(&opt, &flag))
		got = append(got, opt)
		flags = append(flags, flag)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"3", "4", "5", "6"}, got)
	// Exactly one option is flagged correct.
	assert.Equal(t, []int{0, 1, 0, 0}, flags)
}

func TestInsertValidatedCaseInsensitiveAnswer(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertValidated("Capital?", []string{"Paris", "Lyon", "Nice", "Lille"}, "  PARIS ", "")
	require.NoError(t, err)

	var flag int
	err = db.db.QueryRow(
		"SELECT true_or_false FROM test_answers WHERE question_uuid = ? AND option = ?", id, "Paris",
	).Scan(&flag)
	require.NoError(t, err)
	assert.Equal(t, 1, flag)
}

func TestInsertValidatedUnmatchedAnswerFlagsNothing(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertValidated("Q?", []string{"a", "b", "c", "d"}, "elsewhere", "")
	require.NoError(t, err)

	var n int
	err = db.db.QueryRow(
		"SELECT COUNT(*) FROM test_answers WHERE question_uuid = ? AND true_or_false = 1", id,
	).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestForeignKeyEnforced(t *testing.T) {
	db := openTestDB(t)

	_, err := db.db.Exec(
		"INSERT INTO test_answers (question_uuid, option, true_or_false) VALUES (?, ?, ?)",
		"no-such-uuid", "x", 0,
	)
	assert.Error(t, err)
}

func TestInsertValidatedDistinctUUIDs(t *testing.T) {
	db := openTestDB(t)

	first, err := db.InsertValidated("Q?", []string{"a", "b", "c", "d"}, "a", "")
	require.NoError(t, err)
	second, err := db.InsertValidated("Q?", []string{"a", "b", "c", "d"}, "a", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
