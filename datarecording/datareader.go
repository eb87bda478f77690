package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/structs"
)

// Filter selects rows of a recorded table. Column names are the field names
// of the entry type and are checked before any SQL is built.
type Filter struct {
	// Equal keeps the rows whose columns hold exactly the given values.
	Equal map[string]any

	// OrderBy lists the columns to sort by, ascending unless Descending.
	OrderBy    []string
	Descending bool

	// Limit caps the number of rows returned. Zero returns all.
	Limit int
}

// A Reader reads back the tables of a database written by the SQLite
// recorder.
type Reader struct {
	db *sql.DB
}

// NewReader opens a database file for reading.
func NewReader(dbFilename string) (*Reader, error) {
	if _, err := os.Stat(dbFilename); err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", dbFilename, err)
	}

	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		return nil, err
	}

	return &Reader{db: db}, nil
}

// NewReaderWithDB reads from an already opened database.
func NewReaderWithDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Tables returns the names of the tables in the database, sorted.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		tables = append(tables, name)
	}

	sort.Strings(tables)

	return tables, rows.Err()
}

// HasTable tells if the database holds the given table.
func (r *Reader) HasTable(ctx context.Context, table string) (bool, error) {
	tables, err := r.Tables(ctx)
	if err != nil {
		return false, err
	}

	i := sort.SearchStrings(tables, table)

	return i < len(tables) && tables[i] == table, nil
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Select reads the rows of table into values of T, whose fields must match
// the columns the recorder created for T. It also returns the number of rows
// matching the filter regardless of its limit.
func Select[T any](
	ctx context.Context,
	r *Reader,
	table string,
	f Filter,
) ([]T, int, error) {
	var zero T
	if err := checkStructFields(zero); err != nil {
		return nil, 0, err
	}

	columns := structs.Names(zero)

	where, args, err := f.where(columns)
	if err != nil {
		return nil, 0, fmt.Errorf("table %s: %w", table, err)
	}

	order, err := f.order(columns)
	if err != nil {
		return nil, 0, fmt.Errorf("table %s: %w", table, err)
	}

	var total int
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+quote(table)+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting %s: %w", table, err)
	}

	query := "SELECT " + quoteAll(columns) + " FROM " + quote(table) +
		where + order
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", table, err)
	}
	defer rows.Close()

	var entries []T
	for rows.Next() {
		var entry T

		v := reflect.ValueOf(&entry).Elem()
		targets := make([]any, len(columns))
		for i, c := range columns {
			targets[i] = v.FieldByName(c).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, 0, fmt.Errorf("reading %s: %w", table, err)
		}

		entries = append(entries, entry)
	}

	return entries, total, rows.Err()
}

func (f Filter) where(columns []string) (string, []any, error) {
	if len(f.Equal) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(f.Equal))
	for k := range f.Equal {
		if !contains(columns, k) {
			return "", nil, fmt.Errorf("unknown column %q", k)
		}

		keys = append(keys, k)
	}

	sort.Strings(keys)

	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = quote(k) + " = ?"
		args[i] = f.Equal[k]
	}

	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (f Filter) order(columns []string) (string, error) {
	if len(f.OrderBy) == 0 {
		return "", nil
	}

	dir := " ASC"
	if f.Descending {
		dir = " DESC"
	}

	terms := make([]string, len(f.OrderBy))
	for i, c := range f.OrderBy {
		if !contains(columns, c) {
			return "", fmt.Errorf("unknown column %q", c)
		}

		terms[i] = quote(c) + dir
	}

	return " ORDER BY " + strings.Join(terms, ", "), nil
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}

	return false
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}

	return strings.Join(quoted, ", ")
}
