//go:build !linux

package runtime

import (
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/sbl8/sigflow/core"
)

type circularBuffer struct{}

func pageSize() int {
	return os.Getpagesize()
}

// newCircularBuffer always fails off Linux; double mapping relies on memfd.
func newCircularBuffer(size int) (*circularBuffer, error) {
	return nil, fmt.Errorf("%w: double-mapped buffers are not supported on %s", core.ErrAllocation, goruntime.GOOS)
}

func (c *circularBuffer) bytes() []byte  { return nil }
func (c *circularBuffer) size() int      { return 0 }
func (c *circularBuffer) circular() bool { return true }
func (c *circularBuffer) Close() error   { return nil }
