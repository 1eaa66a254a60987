// Package compliance is the authoritative outreach gate. It combines a
// suppression list (company, domain and email entries with optional expiry)
// with regional sending policies that mandate footer content and forbid
// unverifiable claims.
//
// Check is read-only and safe for concurrent use. Suppression writes (Add,
// Remove, Replace, file reloads) are administrative and take an exclusive lock
// for their duration, so a Check never observes a half-applied update.
package compliance
