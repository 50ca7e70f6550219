package workload

import "time"

// chunk is the number of seeds computed between CPU clock reads, keeping
// BusyFor in user space most of the time.
const chunk = 2000

// BusyFor spins until the process has consumed at least d more user CPU
// time. If the CPU clock is unavailable it falls back to wall-clock time.
func BusyFor(d time.Duration) {
	start, err := UserCPUTime()
	if err != nil {
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
			spin()
		}
		return
	}
	for {
		spin()
		now, err := UserCPUTime()
		if err != nil || now-start >= d {
			return
		}
	}
}

var sink uint64

//go:noinline
func spin() {
	var total uint64
	for n := uint64(1); n <= chunk; n++ {
		for v := range CollatzSeq(n) {
			total += v
		}
	}
	sink += total
}
