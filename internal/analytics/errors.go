package analytics

import "errors"

// ErrVolatileStore is returned by the rollup when counters live only in
// process memory.
var ErrVolatileStore = errors.New("rollup needs a persistent kv store")
