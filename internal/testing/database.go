// Package testing holds helpers shared by dcheck's package tests.
package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// CreateTestDB creates an in-memory SQLite test database.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// Every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// warehouseSchema is a small fixture with one clean and one messy table
const warehouseSchema = `
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	customer_id INTEGER NOT NULL,
	amount REAL NOT NULL
);
INSERT INTO orders (id, customer_id, amount) VALUES (1, 1, 10.5), (2, 2, 99.0), (3, 1, 5.25);

CREATE TABLE customers (
	id INTEGER PRIMARY KEY,
	name TEXT,
	email TEXT,
	phone TEXT,
	note TEXT
);
INSERT INTO customers (id, name, email, phone, note) VALUES
	(1, 'Kari', 'kari@example.com', '+4791122334', 'vip'),
	(2, 'Ola', 'ola@example.no', NULL, NULL),
	(3, 'Per', NULL, NULL, 'ssn 123-45-6789 on file'),
	(4, NULL, NULL, NULL, NULL);

CREATE TABLE empty_table (id INTEGER PRIMARY KEY, label TEXT);
`

// CreateWarehouse returns an in-memory database with the orders, customers
// and empty_table fixtures.
func CreateWarehouse(t *testing.T) *sql.DB {
	t.Helper()
	db := CreateTestDB(t)
	if _, err := db.Exec(warehouseSchema); err != nil {
		t.Fatalf("Failed to create warehouse fixture: %v", err)
	}
	return db
}

// CreateWarehouseFile writes the warehouse fixture to a SQLite file in a
// temporary directory and returns its path, for code that opens its own
// connection.
func CreateWarehouseFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warehouse.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to create warehouse file: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(warehouseSchema); err != nil {
		t.Fatalf("Failed to create warehouse fixture: %v", err)
	}
	return path
}
