package source

import "time"

// clockStart anchors monotonic100ns's opaque epoch (§9: "sender-defined
// epoch"); receivers never interpret this value, only compare it.
var clockStart = time.Now()

// monotonic100ns returns the elapsed time since process start in
// 100-nanosecond ticks, the timestamp format §3's base header carries.
func monotonic100ns() uint64 {
	return uint64(time.Since(clockStart) / 100)
}
