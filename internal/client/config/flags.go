package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
)

var knownFlags = []string{"-u", "-k", "-r", "-p", "-d", "-l", "-f", "-t"}

// parseFlags overlays cfg with command-line flags.
//
//	-u string   identity backend URL
//	-k string   anon (public) API key
//	-r string   redirect URL for browser sign-in
//	-p string   platform: ios, android or web
//	-d string   path of the local SQLite database
//	-l string   log level
//	-f string   log format: console, text or json
//	-t string   OTLP/HTTP trace endpoint
//
// args are filtered with flagx.FilterArgs first so flags owned by other
// components (-c, -e) do not trip the parser.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("gophauth", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BackendURL, "u", cfg.BackendURL, "identity backend URL")
	fs.StringVar(&cfg.AnonKey, "k", cfg.AnonKey, "anon API key")
	fs.StringVar(&cfg.RedirectURL, "r", cfg.RedirectURL, "redirect URL for browser sign-in")
	fs.StringVar(&cfg.Platform, "p", cfg.Platform, "platform: ios, android or web")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format")
	fs.StringVar(&cfg.OTelEndpoint, "t", cfg.OTelEndpoint, "OTLP/HTTP trace endpoint")

	return fs.Parse(args)
}
