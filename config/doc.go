// Package config loads the prospectmesh runtime configuration.
//
// Sources are applied in order: .env.local and .env files, the YAML file
// (with ${VAR} and ${VAR:-default} expansion), PROSPECTMESH_* environment
// variables, and finally defaults for everything left unset.
//
// Example file:
//
//	engine:
//	  parallelism: 8
//	  stage_timeout: 2m
//	llm:
//	  provider: anthropic
//	  api_key: ${ANTHROPIC_API_KEY}
//	services:
//	  search_url: http://localhost:8001
//	  rate_limit_rps: 5
//	store:
//	  driver: sqlite
//	  path: data/prospects.db
package config
