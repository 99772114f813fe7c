// Package repository stores evaluated records per zone.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/crowdews/internal/domain/model"
)

// Store keeps the evaluated history of every zone. Implementations are safe
// for concurrent use.
type Store interface {
	// Append adds a record to the end of its zone's history.
	Append(ctx context.Context, rec model.Record) error

	// Latest returns the newest record of zone, or ErrNotFound.
	Latest(ctx context.Context, zone string) (model.Record, error)

	// Recent returns up to n newest records of zone ordered oldest to newest.
	// An unknown zone yields an empty slice.
	Recent(ctx context.Context, zone string, n int) ([]model.Record, error)

	// Zones lists the zones with stored history in lexical order.
	Zones(ctx context.Context) ([]string, error)

	// Count returns the number of retained records.
	Count(ctx context.Context) (int, error)

	Close() error
}

func validateZone(zone string) error {
	if zone == "" || strings.Contains(zone, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidZone, zone)
	}
	return nil
}

func validateLimit(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, n)
	}
	return nil
}
