// Package testdb opens an isolated in-memory SQLite database carrying the
// same tables, unique keys and append-only triggers as the production
// migrations, for package tests.
package testdb

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		expected_amount TEXT NOT NULL,
		asset TEXT NOT NULL,
		payment_address TEXT NOT NULL,
		status TEXT NOT NULL,
		service_payload TEXT,
		settlement_amount TEXT,
		received_crypto TEXT,
		classification TEXT,
		paid_tx_hash TEXT,
		rate_degraded BOOLEAN NOT NULL DEFAULT 0,
		failure_reason TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		order_id TEXT NOT NULL,
		gateway TEXT NOT NULL,
		gateway_event_id TEXT NOT NULL,
		payload_hash TEXT NOT NULL,
		asset TEXT NOT NULL,
		crypto_amount TEXT NOT NULL,
		confirmations INTEGER NOT NULL,
		tx_hash TEXT NOT NULL,
		raw_payload TEXT,
		outcome TEXT,
		received_at TIMESTAMP NOT NULL,
		claimed_at TIMESTAMP,
		processed_at TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX ux_payment_events_order_payload ON payment_events(order_id, payload_hash)`,
	`CREATE TABLE wallet_accounts (
		owner_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		version BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE ledger_entries (
		id BIGINT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reason TEXT NOT NULL,
		order_id TEXT,
		reference TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_ledger_entries_reference ON ledger_entries(reference)`,
	`CREATE TRIGGER ledger_entries_no_update BEFORE UPDATE ON ledger_entries
	 BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END`,
	`CREATE TRIGGER ledger_entries_no_delete BEFORE DELETE ON ledger_entries
	 BEGIN SELECT RAISE(ABORT, 'ledger_entries is append-only'); END`,
	`CREATE TABLE saga_states (
		order_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		current_step TEXT NOT NULL,
		contact_handle TEXT,
		dns_zone_id TEXT,
		nameservers TEXT,
		dns_degraded BOOLEAN NOT NULL DEFAULT 0,
		registrar_domain_id TEXT,
		duplicate_registration BOOLEAN NOT NULL DEFAULT 0,
		contact_attempts INTEGER NOT NULL DEFAULT 0,
		dns_attempts INTEGER NOT NULL DEFAULT 0,
		registrar_attempts INTEGER NOT NULL DEFAULT 0,
		persist_attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		manual_review BOOLEAN NOT NULL DEFAULT 0,
		compensated BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	)`,
	`CREATE TABLE registered_domains (
		id BIGINT PRIMARY KEY,
		domain_name TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		registrar_domain_id TEXT NOT NULL,
		dns_zone_id TEXT,
		nameservers TEXT,
		dns_degraded BOOLEAN NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		registered_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_registered_domains_name ON registered_domains(domain_name)`,
}

// Open returns a fresh database. Writers are serialized on one connection,
// which is what SQLite does anyway, so concurrent tests exercise the
// application locks rather than SQLITE_LOCKED errors.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:domainpay_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
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

// Count runs a COUNT query and returns the result.
func Count(t *testing.T, conn *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := conn.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	return n
}
