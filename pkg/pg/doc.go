// Package pg provides the PostgreSQL backend: pooled connections with retry,
// a health check, goose schema migrations, and PgStore, a datastore.RowStore
// over single SQL statements.
//
// PgStore deliberately does not use database transactions. The transaction
// plan layer assumes every mutation is one independent round trip with
// compensation-based undo, and that contract must hold identically whether
// rows live behind the REST data store or in PostgreSQL.
package pg
