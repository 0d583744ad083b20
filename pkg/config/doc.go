// Package config loads and validates the service configuration.
//
// # Sources
//
// Values come from, in increasing precedence: Default(), the YAML file named
// by GATEHOUSE_CONFIG_FILE, and GATEHOUSE_* environment variables.
//
//	server:
//	  port: "8080"
//	  health_port: "9090"
//	auth:
//	  strategy: federated-session
//	  session_ttl: 168h
//	storage:
//	  backend: postgres
//	  url: postgres://gatehouse@db/gatehouse?sslmode=disable
//	  session_backend: redis
//	  redis_url: redis://cache:6379/0
//	federation:
//	  provider:
//	    preset: google
//	    redirect_url: https://auth.example.com/auth/google/callback
//
// Secrets are normally left out of the file and passed in the environment:
//
//	GATEHOUSE_ACCESS_TOKEN_SECRET, GATEHOUSE_REFRESH_TOKEN_SECRET
//	GATEHOUSE_SESSION_SECRET
//	GATEHOUSE_OAUTH_CLIENT_ID, GATEHOUSE_OAUTH_CLIENT_SECRET
//
// # Validation
//
// Validate returns an error of kind auth.KindFatal for anything the process
// cannot run with: missing or identical secrets, an out of range bcrypt cost,
// an unknown strategy or rotation policy, a federated strategy without
// provider credentials, or clashing ports.
package config
