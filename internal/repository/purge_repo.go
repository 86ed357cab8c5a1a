package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"familygallery/internal/database"
)

// Table names a table the purge repository may delete from
type Table string

const (
	TableShareLinks    Table = "share_links"
	TableArtworks      Table = "artworks"
	TableInvites       Table = "invites"
	TableFamilyMembers Table = "family_members"
	TableSubscriptions Table = "subscriptions"
	TableChildren      Table = "children"
	TableFamilies      Table = "families"
	TableUsers         Table = "users"
)

func (t Table) valid() bool {
	switch t {
	case TableShareLinks, TableArtworks, TableInvites, TableFamilyMembers,
		TableSubscriptions, TableChildren, TableFamilies, TableUsers:
		return true
	}
	return false
}

var columnPattern = regexp.MustCompile(`^[a-z_]+$`)

// ErrUnscopedDelete is returned for a delete without any condition
var ErrUnscopedDelete = errors.New("refusing delete without a predicate")

// Predicate is a conjunction of column conditions. The zero value matches
// every row and is refused by DeleteWhere.
type Predicate struct {
	clauses []string
	args    []interface{}
	none    bool
	err     error
}

// Where starts a predicate with column = value
func Where(column string, value interface{}) Predicate {
	return Predicate{}.And(column, value)
}

// WhereIn starts a predicate with column IN (ids). An empty id list
// matches nothing.
func WhereIn(column string, ids []int64) Predicate {
	return Predicate{}.AndIn(column, ids)
}

// And adds column = value
func (p Predicate) And(column string, value interface{}) Predicate {
	if !columnPattern.MatchString(column) {
		p.err = fmt.Errorf("invalid column %q", column)
		return p
	}
	p.clauses = append(p.clauses, column+" = ?")
	p.args = append(p.args, value)
	return p
}

// AndIn adds column IN (ids)
func (p Predicate) AndIn(column string, ids []int64) Predicate {
	if !columnPattern.MatchString(column) {
		p.err = fmt.Errorf("invalid column %q", column)
		return p
	}
	if len(ids) == 0 {
		p.none = true
		return p
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	p.clauses = append(p.clauses, column+" IN ("+placeholders+")")
	for _, id := range ids {
		p.args = append(p.args, id)
	}
	return p
}

func (p Predicate) String() string {
	if p.none {
		return "FALSE"
	}
	return strings.Join(p.clauses, " AND ")
}

// PurgeRepository executes single scoped deletes. Each call is one
// statement and is independent of every other call.
type PurgeRepository struct {
	db *database.DB
}

// NewPurgeRepository creates a new purge repository
func NewPurgeRepository(db *database.DB) *PurgeRepository {
	return &PurgeRepository{db: db}
}

// DeleteWhere removes the rows of table matching pred and returns how many
// were removed. Deleting rows that are already gone is not an error.
func (r *PurgeRepository) DeleteWhere(ctx context.Context, table Table, pred Predicate) (int64, error) {
	if !table.valid() {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	if pred.err != nil {
		return 0, pred.err
	}
	if pred.none {
		return 0, nil
	}
	if len(pred.clauses) == 0 {
		return 0, ErrUnscopedDelete
	}

	query := "DELETE FROM " + string(table) + " WHERE " + pred.String()
	res, err := r.db.ExecContext(ctx, query, pred.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted count for %s: %w", table, err)
	}
	return n, nil
}
