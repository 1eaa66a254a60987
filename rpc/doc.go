// Package rpc implements the external collaborators (search, email, calendar
// and store) as clients of a small JSON-over-HTTP contract:
//
//	POST <base>/rpc  {"method": "search.query", "params": {...}}
//	200              {"result": ...}
//	4xx              {"error": "message"} or {"error": {"code": "...", "message": "..."}}
//
// Connection failures, timeouts, 429 and 5xx responses become
// core.TransientError so the orchestrator retries the stage. Well-formed error
// replies become *core.RemoteError and are mapped by the calling agent.
package rpc
