package trustee

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestPermutationIsDeterministicAndCyclesThroughAllPositions(t *testing.T) {
	c := qt.New(t)
	cfgH := []byte{0, 0, 0, 0, 0, 0, 0, 3}
	n := 4
	seen := make(map[int]bool)
	for k := 1; k <= n; k++ {
		pos := Permutation(cfgH, 0, k, n)
		c.Assert(pos >= 0 && pos < n, qt.IsTrue)
		seen[pos] = true
		// determinism: same inputs, same output
		c.Assert(Permutation(cfgH, 0, k, n), qt.Equals, pos)
	}
	c.Assert(seen, qt.HasLen, n)
}
