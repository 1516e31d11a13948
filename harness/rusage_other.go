//go:build !unix

package harness

import "os"

func peakRSS(*os.ProcessState) uint64 {
	return 0
}
