// Package dbtest opens throwaway sqlite databases carrying the same tables and
// foreign keys as the Postgres migrations.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE profiles (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT,
		company_name TEXT,
		vehicle_type TEXT,
		vehicle_number TEXT,
		license_number TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE auctions (
		id TEXT PRIMARY KEY,
		created_by TEXT NOT NULL REFERENCES profiles(id),
		title TEXT NOT NULL,
		description TEXT,
		pickup_location TEXT NOT NULL,
		dropoff_location TEXT NOT NULL,
		cargo_type TEXT,
		cargo_weight_kg NUMERIC,
		vehicle_type TEXT,
		vehicle_requirements TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		winner_id TEXT REFERENCES profiles(id),
		winning_bid_id TEXT REFERENCES bids(id),
		bid_count INTEGER NOT NULL DEFAULT 0,
		lowest_bid_amount NUMERIC,
		highest_bid_amount NUMERIC,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE bids (
		id TEXT PRIMARY KEY,
		auction_id TEXT NOT NULL REFERENCES auctions(id),
		user_id TEXT NOT NULL REFERENCES profiles(id),
		amount NUMERIC NOT NULL CHECK (amount > 0),
		is_winning_bid BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (auction_id, user_id)
	)`,
	`CREATE TABLE trips (
		id TEXT PRIMARY KEY,
		auction_id TEXT NOT NULL REFERENCES auctions(id),
		driver_id TEXT NOT NULL REFERENCES profiles(id),
		consigner_id TEXT NOT NULL REFERENCES profiles(id),
		status TEXT NOT NULL DEFAULT 'in_progress',
		agreed_price NUMERIC NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (auction_id)
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id),
		auction_id TEXT REFERENCES auctions(id),
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY,
		auction_id TEXT REFERENCES auctions(id),
		user_id TEXT REFERENCES profiles(id),
		action TEXT NOT NULL,
		summary TEXT NOT NULL,
		details TEXT NOT NULL,
		created_at DATETIME
	)`,
}

// Open returns a private in-memory database with foreign keys enforced. The
// pool is pinned to one connection so every statement sees the same schema.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
