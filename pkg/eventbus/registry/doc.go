// Package registry provides append-only, thread-safe lookup tables used by
// the event bus.
//
// Two shapes are provided:
//
//   - Registry[K, V] maps a key to exactly one value. The first value
//     registered for a key wins; later registrations are ignored.
//   - Multi[K, V] maps a key to a set of values. Adding a value that is
//     already present under the key is a no-op, and values are kept in
//     insertion order.
//
// Neither type supports removal. Entries live for the lifetime of the
// table, which matches how handler tables are built: populated at startup,
// possibly extended by later discovery passes, and read for the rest of the
// process lifetime.
//
// # Basic Usage
//
//	handlers := registry.NewMulti[string, string]()
//	handlers.Add("OrderCreated", "billing.Ledger#OnOrderCreated")
//	handlers.Add("OrderCreated", "billing.Ledger#OnOrderCreated") // no-op
//
//	for _, h := range handlers.Get("OrderCreated") {
//	    fmt.Println(h)
//	}
//
// # Snapshots
//
// Multi uses copy-on-write: every Add publishes a new slice for the key and
// never mutates a slice that was handed out. Get therefore returns a
// snapshot that stays valid while writers continue to add values. Callers
// must treat returned slices as read-only.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package registry
