// Package health serves liveness and readiness probes for a running backlog.
//
// Readiness aggregates named checks. backlog run registers one for the
// database directory, one for the record caps and one for the transport:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("database", health.DirCheck(db.Dir()))
//	checker.Register("transport", health.FailureCheck(func() int {
//		return tr.Stats().ConsecutiveFailures
//	}, 3))
//	health.Mount(mux, checker, health.VersionInfo{Version: Version})
package health
