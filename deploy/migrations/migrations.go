package migrations

import "embed"

// Files holds the SQL migrations for the deployments store, applied in
// file name order.
//
//go:embed *.sql
var Files embed.FS
