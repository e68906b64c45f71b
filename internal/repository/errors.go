// Package repository persists the portal's own state: the admin audit log.
// Personnel data itself lives in PERSCOM and never touches this database.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row. Handlers translate
// it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")
