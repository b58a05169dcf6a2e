// Package logger is the application context: it owns the settings store,
// the level registry, the handler tree and the engine, and exposes the
// producer-side API.
//
// Manual records:
//
//	log := logger.New()
//	log.AddHandler("mem", sink.NewMemory())
//	log.Log("kek", "level", 1)
//	log.At("ERROR").With("user", id).Log("payment failed")
//
// Automatic records wrap a function; the wrapped code receives the record
// builder so it can add fields that end up in the final record:
//
//	add := logger.Wrap(log, "add", func(b *record.Builder, in [2]int) (int, error) {
//		return in[0] + in[1], nil
//	})
//	sum, err := add.Call([2]int{2, 3})
package logger
