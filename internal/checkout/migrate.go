package checkout

import "embed"

// Migrations holds the schema migrations for the checkout tables.
//
//go:embed migrations/*.sql
var Migrations embed.FS
