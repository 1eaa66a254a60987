// Package artifact stores sequencing proposals and their attachments.
//
// The core.ProposalStore contract lives in core; this package provides the
// in-process implementation plus typed helpers that encode core.Proposal
// values. The Sequencer uses the store for idempotence: a proposal saved
// under "<prospect id>:v<draft version>" is reused instead of sending the
// same draft twice.
package artifact
