package transcript

// ScrollMode discriminates the scroll model's two states.
type ScrollMode int

const (
	FollowLatest ScrollMode = iota
	Anchored
)

// CellLineInfo records one cell's position in the rendered line
// stream, enabling O(log n) viewport slicing via binary search instead
// of walking every cell on each frame.
type CellLineInfo struct {
	CellID    CellID
	StartLine int
	LineCount int
}

// VisibleRange is the result of a viewport visibility calculation.
type VisibleRange struct {
	FirstCellIndex      int
	LastCellIndex       int // exclusive
	FirstCellLineOffset int
	LinesBefore         int
}

// ScrollState tracks the transcript viewport's scroll position, the
// cached total line count from the last render, and a per-cell line
// index used for visibility and selection-coordinate translation.
type ScrollState struct {
	mode            ScrollMode
	anchorOffset    int
	cachedLineCount int
	cellLineInfo    []CellLineInfo
}

func NewScrollState() *ScrollState {
	return &ScrollState{mode: FollowLatest}
}

func (s *ScrollState) IsFollowing() bool { return s.mode == FollowLatest }

// GetOffset returns the scroll offset to render at for the given
// viewport height: in FollowLatest mode the offset that shows the
// bottom of content; in Anchored mode the stored offset clamped to
// the valid range. Always within [0, max(0, cachedLineCount-height)],
// per spec.md 8's scroll-math invariant.
func (s *ScrollState) GetOffset(viewportHeight int) int {
	maxOffset := saturatingSub(s.cachedLineCount, viewportHeight)
	if s.mode == FollowLatest {
		return maxOffset
	}
	if s.anchorOffset < maxOffset {
		return s.anchorOffset
	}
	return maxOffset
}

func (s *ScrollState) HasContentBelow(viewportHeight int) bool {
	offset := s.GetOffset(viewportHeight)
	return offset+viewportHeight < s.cachedLineCount
}

func (s *ScrollState) ScrollUp(lines, viewportHeight int) {
	current := s.GetOffset(viewportHeight)
	s.mode = Anchored
	s.anchorOffset = saturatingSub(current, lines)
}

// ScrollDown scrolls down by lines, transitioning back to FollowLatest
// once the bottom is reached.
func (s *ScrollState) ScrollDown(lines, viewportHeight int) {
	if s.mode == FollowLatest {
		return
	}
	current := s.GetOffset(viewportHeight)
	maxOffset := saturatingSub(s.cachedLineCount, viewportHeight)
	next := current + lines
	if next >= maxOffset {
		s.mode = FollowLatest
		return
	}
	s.mode = Anchored
	s.anchorOffset = next
}

func (s *ScrollState) ScrollToTop() {
	s.mode = Anchored
	s.anchorOffset = 0
}

func (s *ScrollState) ScrollToBottom() {
	s.mode = FollowLatest
}

func (s *ScrollState) PageUp(viewportHeight int) {
	h := viewportHeight
	if h < 1 {
		h = 1
	}
	s.ScrollUp(h, viewportHeight)
}

func (s *ScrollState) PageDown(viewportHeight int) {
	h := viewportHeight
	if h < 1 {
		h = 1
	}
	s.ScrollDown(h, viewportHeight)
}

// Reset returns the scroll state to FollowLatest with no cached
// layout, used after clearing the transcript (e.g. thread switch).
func (s *ScrollState) Reset() {
	s.mode = FollowLatest
	s.anchorOffset = 0
	s.cachedLineCount = 0
	s.cellLineInfo = nil
}

// UpdateCellLineInfo rebuilds the per-cell line index from a render
// pass's (cellID, lineCount) pairs in cell order, and updates the
// cached total line count used by GetOffset.
func (s *ScrollState) UpdateCellLineInfo(counts []CellLineInfo) {
	cumulative := 0
	info := make([]CellLineInfo, len(counts))
	for i, c := range counts {
		info[i] = CellLineInfo{CellID: c.CellID, StartLine: cumulative, LineCount: c.LineCount}
		cumulative += c.LineCount
	}
	s.cellLineInfo = info
	s.cachedLineCount = cumulative
}

func (s *ScrollState) CellStartLine(cellIndex int) (int, bool) {
	if cellIndex < 0 || cellIndex >= len(s.cellLineInfo) {
		return 0, false
	}
	return s.cellLineInfo[cellIndex].StartLine, true
}

// VisibleRange computes which cells overlap the current viewport via
// binary search over the monotonically increasing start-line index,
// giving O(log n) slicing per spec.md 4.11.
func (s *ScrollState) VisibleRange(viewportHeight int) (VisibleRange, bool) {
	if len(s.cellLineInfo) == 0 {
		return VisibleRange{}, false
	}
	scrollOffset := s.GetOffset(viewportHeight)
	viewportEnd := scrollOffset + viewportHeight

	first := partitionPoint(s.cellLineInfo, func(info CellLineInfo) bool {
		return info.StartLine+info.LineCount <= scrollOffset
	})
	if first >= len(s.cellLineInfo) {
		return VisibleRange{}, false
	}
	last := partitionPoint(s.cellLineInfo, func(info CellLineInfo) bool {
		return info.StartLine < viewportEnd
	})
	firstOffset := saturatingSub(scrollOffset, s.cellLineInfo[first].StartLine)

	return VisibleRange{
		FirstCellIndex:      first,
		LastCellIndex:       last,
		FirstCellLineOffset: firstOffset,
		LinesBefore:         scrollOffset,
	}, true
}

// partitionPoint returns the index of the first element for which
// pred is false, assuming pred is true for a prefix and false for the
// remaining suffix (mirrors Rust slice::partition_point).
func partitionPoint(info []CellLineInfo, pred func(CellLineInfo) bool) int {
	lo, hi := 0, len(info)
	for lo < hi {
		mid := (lo + hi) / 2
		if pred(info[mid]) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func saturatingSub(a, b int) int {
	if a < b {
		return 0
	}
	return a - b
}
