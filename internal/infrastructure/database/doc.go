// Package database manages the SQLite activity cache connection.
//
// SQLite is a deliberate fit here: the service is a single-process wrapper
// whose cache lives on the /data volume next to the Garmin token store, so
// everything that must survive a container restart sits under one mount.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     true,
//	    BusyTimeout: 5,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded via the top-level migrations package; see
// MigrationsFS.
package database
