// Package automaxprocs sets GOMAXPROCS to match the container/cgroup CPU
// quota on import, so syncd doesn't default to the host's full core count
// when run inside a constrained container. Import for side effect only.
package automaxprocs

import (
	"go.uber.org/automaxprocs/maxprocs"
)

func init() {
	maxprocs.Set()
}
