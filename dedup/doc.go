// Package dedup fingerprints contacts and prospects so the same person or
// company is never reached twice. All functions are pure and idempotent.
package dedup
