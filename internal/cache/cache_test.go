package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/iiotgw/internal/tagvalue"
)

func TestAddResetsTimestampAndChanged(t *testing.T) {
	c := New()
	c.Add("g", "t", tagvalue.Int32(5))

	e, ok := c.Get("g", "t")
	require.True(t, ok)
	assert.Equal(t, int64(0), e.Timestamp)
	assert.False(t, e.Changed)
	assert.Equal(t, int64(5), e.Value.Int())
}

func TestUpdateOnMissingEntryIsNoop(t *testing.T) {
	c := New()
	c.Update("g", "t", 10, tagvalue.Int32(5))
	_, ok := c.Get("g", "t")
	assert.False(t, ok)
}

func TestUpdateSetsTimestamp(t *testing.T) {
	c := New()
	c.Add("g", "t", tagvalue.Int32(1))
	c.Update("g", "t", 42, tagvalue.Int32(2))

	e, ok := c.Get("g", "t")
	require.True(t, ok)
	assert.Equal(t, int64(42), e.Timestamp)
}

func TestGetChangedClearsFlagForNonError(t *testing.T) {
	c := New()
	c.Add("g", "t", tagvalue.Int32(1))
	c.Update("g", "t", 1, tagvalue.Int32(2))

	e, ok := c.GetChanged("g", "t")
	require.True(t, ok)
	assert.Equal(t, int64(2), e.Value.Int())

	_, ok = c.GetChanged("g", "t")
	assert.False(t, ok, "changed flag must be cleared after first GetChanged")
}

// Scenario 1: float precision suppresses jitter (SPEC_FULL.md §8).
func TestFloatPrecisionSuppressesJitter(t *testing.T) {
	c := New()
	c.Add("g", "t", tagvalue.Float(1.23, 2))

	c.Update("g", "t", 1000, tagvalue.Float(1.234, 2))
	_, ok := c.GetChanged("g", "t")
	assert.False(t, ok, "jitter within precision tolerance must not be reported")

	c.Update("g", "t", 1001, tagvalue.Float(1.25, 2))
	e, ok := c.GetChanged("g", "t")
	require.True(t, ok)
	assert.Equal(t, int64(1001), e.Timestamp)
	assert.InDelta(t, 1.25, e.Value.Float64(), 1e-9)

	_, ok = c.GetChanged("g", "t")
	assert.False(t, ok)
}

// Scenario 2: error latch (SPEC_FULL.md §8).
func TestErrorLatch(t *testing.T) {
	c := New()
	c.Add("g", "t", tagvalue.Int32(5))
	c.Update("g", "t", 10, tagvalue.Error(-3))

	e, ok := c.GetChanged("g", "t")
	require.True(t, ok)
	assert.Equal(t, int32(-3), e.Value.ErrorCode())

	e, ok = c.GetChanged("g", "t")
	require.True(t, ok, "ERROR entries must latch changed until re-added")
	assert.Equal(t, int32(-3), e.Value.ErrorCode())

	c.Update("g", "t", 11, tagvalue.Int32(7))
	e, ok = c.GetChanged("g", "t")
	require.True(t, ok)
	assert.Equal(t, int64(7), e.Value.Int())

	_, ok = c.GetChanged("g", "t")
	assert.False(t, ok)
}

func TestEqualUpdateLeavesChangedUnchanged(t *testing.T) {
	c := New()
	c.Add("g", "t", tagvalue.Int32(5))
	c.Update("g", "t", 1, tagvalue.Int32(5))
	_, ok := c.GetChanged("g", "t")
	assert.False(t, ok, "an equal update must not set changed")
}

func TestDel(t *testing.T) {
	c := New()
	c.Add("g", "t", tagvalue.Int32(5))
	c.Del("g", "t")
	_, ok := c.Get("g", "t")
	assert.False(t, ok)
}

func TestSnapshotChangedClearsNonErrorOnly(t *testing.T) {
	c := New()
	c.Add("g", "a", tagvalue.Int32(1))
	c.Add("g", "b", tagvalue.Int32(1))
	c.Update("g", "a", 1, tagvalue.Int32(2))
	c.Update("g", "b", 1, tagvalue.Error(-1))

	entries := c.SnapshotChanged()
	assert.Len(t, entries, 2)

	_, aChanged := c.GetChanged("g", "a")
	assert.False(t, aChanged)
	_, bChanged := c.GetChanged("g", "b")
	assert.True(t, bChanged, "ERROR entry must still be changed after SnapshotChanged")
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	c.Add("g", "t", tagvalue.Int32(0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Update("g", "t", int64(n), tagvalue.Int32(int32(n)))
			c.Get("g", "t")
			c.GetChanged("g", "t")
		}(i)
	}
	wg.Wait()

	_, ok := c.Get("g", "t")
	assert.True(t, ok)
}
