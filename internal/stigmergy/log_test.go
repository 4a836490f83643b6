package stigmergy

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndSnapshot(t *testing.T) {
	log := NewLog()
	assert.Zero(t, log.Len())

	log.Append(Comment{AgentID: "crowd-0", Text: "first"})
	log.Append(Comment{AgentID: "crowd-1", Text: "second"})

	snap := log.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "first", snap[0].Text)
	assert.Equal(t, "second", snap[1].Text)
	assert.False(t, snap[0].Timestamp.IsZero())

	// Mutating the snapshot must not affect the log.
	snap[0].Text = "mutated"
	assert.Equal(t, "first", log.Snapshot()[0].Text)
}

func TestConcurrentAppendersSeeConsistentPrefix(t *testing.T) {
	log := NewLog()
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				log.Append(Comment{AgentID: fmt.Sprintf("crowd-%d", w), Text: "c"})
				snap := log.Snapshot()
				// A snapshot taken right after our append includes it.
				assert.GreaterOrEqual(t, len(snap), 1)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, log.Len())
}
