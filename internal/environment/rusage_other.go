//go:build !unix

package environment

import "time"

func rusage() (user, system time.Duration) { return 0, 0 }

func maxRSS() uint64 { return 0 }
