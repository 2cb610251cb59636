// Package delivery drives stored records to a Transport.
//
// A Loop ticks on a fixed interval. On each tick, if no delivery is
// outstanding, it takes the next record from the Queue, hands the payload
// to the Transport on its own goroutine and releases the record with the
// resulting outcome when the call returns. At most one delivery is in
// flight at any time; a tick that finds one outstanding does nothing.
//
// Flush bypasses the retry policy: every stored record is removed from the
// Queue and sent once, synchronously.
//
// Example:
//
//	loop := delivery.NewLoop(db, transport,
//	    delivery.WithInterval(time.Minute),
//	    delivery.WithObserver(func(ctx context.Context, a delivery.Attempt) {
//	        log.Printf("%s: %s", a.RecordID, a.Outcome)
//	    }),
//	)
//	go loop.Run(ctx)
package delivery
