package dbtask

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Office is one row of office_management, grounded on original_source/
// scripts/database/create_office_management_table.py. The Messaging task
// kind looks an Office up by the 4-letter office segment embedded in an
// entity id (spec §3's OFF segment) to fill a notification template —
// functionality present in the original system but outside spec.md's
// distillation.
type Office struct {
	Code     string
	Name     string
	District string
	Email    string
	Phone    string
}

// OfficeDirectory caches office_management in memory so the Messaging task
// kind never blocks a notification send on a database round trip.
type OfficeDirectory struct {
	mu      sync.RWMutex
	offices map[string]Office
	pool    *pgxpool.Pool
}

// NewOfficeDirectory returns an empty directory; call Load before first use.
func NewOfficeDirectory(pool *pgxpool.Pool) *OfficeDirectory {
	return &OfficeDirectory{offices: make(map[string]Office), pool: pool}
}

// Load (re)populates the in-memory cache from office_management. Call it at
// startup and on whatever interval an operator wants the directory to pick
// up office-roster changes.
func (d *OfficeDirectory) Load(ctx context.Context) error {
	rows, err := d.pool.Query(ctx, `
		SELECT office_id, office_name, district, office_email, office_phone
		FROM office_management
	`)
	if err != nil {
		return fmt.Errorf("dbtask: load office directory: %w", err)
	}
	defer rows.Close()

	offices := make(map[string]Office)
	for rows.Next() {
		var o Office
		if err := rows.Scan(&o.Code, &o.Name, &o.District, &o.Email, &o.Phone); err != nil {
			return fmt.Errorf("dbtask: scan office row: %w", err)
		}
		offices[normalizeOfficeCode(o.Code)] = o
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("dbtask: iterate office rows: %w", err)
	}

	d.mu.Lock()
	d.offices = offices
	d.mu.Unlock()
	return nil
}

// Lookup resolves a 4-letter entity-id office segment to its Office record.
func (d *OfficeDirectory) Lookup(code string) (Office, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	o, ok := d.offices[normalizeOfficeCode(code)]
	return o, ok
}

func normalizeOfficeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
