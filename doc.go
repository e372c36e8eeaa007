// Package perch is a social-networking web backend.
//
// Perch provides user accounts, posts, follow/block relationships, media
// upload, and moderation reports behind a versioned JSON HTTP API. Endpoint
// classes are protected by fixed-window rate limiting with per-IP or
// per-user key derivation.
//
// # Quick Start
//
// Install the server:
//
//	go install github.com/perchsocial/perch/cmd/perch@latest
//
// Create a configuration file:
//
//	server:
//	  host: localhost
//	  port: 8080
//	databases:
//	  main:
//	    driver: sqlite
//	    database: perch.db
//	auth:
//	  secret: "${PERCH_AUTH_SECRET}"
//
// Start the server:
//
//	perch serve --config perch.yaml
//
// # Using as Go Library
//
// Import specific packages:
//
//	import (
//	    "github.com/perchsocial/perch/pkg/ratelimit"
//	    "github.com/perchsocial/perch/pkg/config"
//	    "github.com/perchsocial/perch/pkg/server"
//	)
//
// # Key Features
//
//   - Versioned JSON API with a stable response envelope
//   - Fixed-window rate limiting with a per-endpoint-class policy table
//   - JWT authentication (local HS256 or remote JWKS)
//   - SQLite, PostgreSQL, and MySQL storage backends
//   - Config from file, consul, etcd, or zookeeper, with live reload
//   - OpenTelemetry tracing and Prometheus metrics
package perch
