package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrollOffsetFollowLatestShowsBottom(t *testing.T) {
	s := NewScrollState()
	s.UpdateCellLineInfo([]CellLineInfo{{CellID: 1, LineCount: 100}})
	assert.Equal(t, 80, s.GetOffset(20))
}

func TestScrollOffsetNeverExceedsMax(t *testing.T) {
	s := NewScrollState()
	s.UpdateCellLineInfo([]CellLineInfo{{CellID: 1, LineCount: 10}})
	assert.Equal(t, 0, s.GetOffset(20), "content shorter than viewport clamps to 0")
}

func TestScrollUpThenDownReturnsToFollowLatest(t *testing.T) {
	s := NewScrollState()
	s.UpdateCellLineInfo([]CellLineInfo{{CellID: 1, LineCount: 100}})

	s.ScrollUp(10, 20)
	assert.False(t, s.IsFollowing())
	assert.Equal(t, 70, s.GetOffset(20))

	s.ScrollDown(10, 20)
	assert.True(t, s.IsFollowing(), "scrolling back down to the bottom re-enters follow mode")
}

func TestScrollMathInvariantAcrossRandomSizes(t *testing.T) {
	for _, lineCount := range []int{0, 1, 5, 19, 20, 21, 1000} {
		for _, height := range []int{1, 5, 20, 50} {
			s := NewScrollState()
			s.UpdateCellLineInfo([]CellLineInfo{{CellID: 1, LineCount: lineCount}})
			s.ScrollUp(3, height)
			offset := s.GetOffset(height)
			maxOffset := saturatingSub(lineCount, height)
			assert.GreaterOrEqual(t, offset, 0)
			assert.LessOrEqual(t, offset, maxOffset)
		}
	}
}

func TestVisibleRangeBinarySearch(t *testing.T) {
	s := NewScrollState()
	s.UpdateCellLineInfo([]CellLineInfo{
		{CellID: 1, LineCount: 10},
		{CellID: 2, LineCount: 10},
		{CellID: 3, LineCount: 10},
	})
	s.ScrollToTop()
	vr, ok := s.VisibleRange(15)
	assert.True(t, ok)
	assert.Equal(t, 0, vr.FirstCellIndex)
	assert.Equal(t, 2, vr.LastCellIndex)
}

func TestVisibleRangeEmptyReturnsFalse(t *testing.T) {
	s := NewScrollState()
	_, ok := s.VisibleRange(20)
	assert.False(t, ok)
}
