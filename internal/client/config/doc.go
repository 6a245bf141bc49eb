// Package config loads runtime configuration for the auth client CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Dotenv file selected with -e or -env-file, else ./.env if present.
//  4. Environment variables (see the env tags on Config).
//  5. Command-line flags, which override everything before them.
//
// # JSON schema
//
// Durations may be strings like "30s" or integer nanoseconds:
//
//	{
//	  "backend_url": "https://project.supabase.co",
//	  "anon_key": "public-anon-key",
//	  "platform": "web",
//	  "refresh_interval": "30s"
//	}
//
// Call (*Config).Validate before use: the backend URL and anon key have no
// defaults.
package config
