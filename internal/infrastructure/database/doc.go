// Package database opens the SQLite file behind the message archive.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (normally the embedded migrations package)
//   - Health checks and lifecycle
//
// SQLite allows one writer at a time, so the pool is capped at a single
// connection. The recorder writes from the session loop only and the export
// command reads from a separate process, which WAL mode permits.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "data/mqtt.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql and are applied
// in version order, each in its own transaction.
package database
