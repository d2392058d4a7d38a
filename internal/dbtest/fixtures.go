package dbtest

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var fixtureTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// SeedUser inserts a customer with the given email and returns its id.
func SeedUser(t *testing.T, db *gorm.DB, node *snowflake.Node, email string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	err := db.Exec(
		`INSERT INTO users (id, full_name, email, tax_id, phone, password_hash, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'customer', ?, ?)`,
		id, "Test User", email, "12345678909", "11999990000", "x", fixtureTime, fixtureTime,
	).Error
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

// SeedEvent inserts an active event starting at start and lasting four hours.
func SeedEvent(t *testing.T, db *gorm.DB, node *snowflake.Node, name string, start time.Time) snowflake.ID {
	t.Helper()
	id := node.Generate()
	err := db.Exec(
		`INSERT INTO events (id, name, slug, start_at, end_at, location, city, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'Main Hall', 'Sao Paulo', TRUE, ?, ?)`,
		id, name, id.String(), start.UTC(), start.Add(4*time.Hour).UTC(), fixtureTime, fixtureTime,
	).Error
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return id
}

// SeedTicketClass inserts a ticket class; classType is general, vip or
// complimentary.
func SeedTicketClass(t *testing.T, db *gorm.DB, node *snowflake.Node, eventID snowflake.ID, price string, classType string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	err := db.Exec(
		`INSERT INTO ticket_classes (id, event_id, name, price, type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, eventID, "Class "+classType, decimal.RequireFromString(price), classType, fixtureTime,
	).Error
	if err != nil {
		t.Fatalf("seed ticket class: %v", err)
	}
	return id
}
