// Package store contains implementations of the core.ProspectStore,
// core.Directory and core.HandoffStore contracts.
//
// The contracts live in core so orchestration code never depends on a
// concrete backend. MemoryStore keeps everything in process; the sqlite
// subpackage persists prospects across restarts, and rpc.StoreClient talks to
// a remote store collaborator.
package store
