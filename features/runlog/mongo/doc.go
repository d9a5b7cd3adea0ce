// Package mongo provides MongoDB-backed run log storage.
//
// Use clients/mongo to build the low-level client and pass it to NewStore to
// obtain a runlog.Store that persists append-only run entries.
package mongo
