// Package db provides the embedded database schema and default coupon seed.
package db

import _ "embed"

// Schema contains the DDL statements for the coupons table.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedCoupons is a JSON array of the coupons loaded at startup when default
// seeding is enabled.
//
//go:embed seed/coupons.json
var SeedCoupons []byte
