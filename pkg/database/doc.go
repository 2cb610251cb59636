// Package database persists crash reports on disk until they are delivered.
//
// # Layout
//
// Each record is two files in the database directory, plus optional
// attachments:
//
//	<id>-data.json    report payload
//	<id>-record.json  metadata: id, hash, data file, attachments, duplicates
//
// The payload is written first and the metadata last, both through a
// temp-file rename. A metadata file therefore always describes a complete
// record; anything else found in the directory at startup is swept.
//
// # Index
//
// The Index holds every record in memory with a running size total. It
// deduplicates by hash, enforces the record count and byte caps by evicting
// in retry order, and hands records to the delivery loop one at a time
// through PopNext/Release. Locked records are never evicted or
// deduplicated into.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//		Enabled:        true,
//		Path:           "./data/reports",
//		CreateDatabase: true,
//		IndexConfig: database.IndexConfig{
//			MaxRecordCount: 100,
//			RetryLimit:     3,
//			Deduplication:  report.StrategyDefault,
//		},
//	})
//	rec, err := db.Add(report.New("boom"))
package database
