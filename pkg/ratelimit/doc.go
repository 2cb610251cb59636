// Package ratelimit throttles report capture with a rolling one-minute
// window.
//
// # Usage
//
//	w := ratelimit.NewWatcher(10)
//	if !w.Admit() {
//		if w.ShouldWarn() {
//			slog.Warn("report limit reached", "limit", w.Limit())
//			w.AcknowledgeWarning()
//		}
//		return
//	}
//
// The limit can be changed at runtime with Configure; setting it to 0
// disables throttling.
package ratelimit
