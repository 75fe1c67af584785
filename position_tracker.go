package uniswap_v4_hedger

// AlignTick floors tick to a multiple of spacing, rounding toward negative
// infinity so bounds derived from it stay usable on either side of zero.
func AlignTick(tick, spacing int) int {
	if spacing <= 0 {
		return tick
	}
	aligned := (tick / spacing) * spacing
	if tick < 0 && tick%spacing != 0 {
		aligned -= spacing
	}
	return aligned
}

// ShouldShift reports whether the current tick drifted far enough from the
// live position bounds to require re-centering. The thresholds are offsets
// from the position's own bounds, not from the configured width.
func ShouldShift(position TickRange, config PoolConfig, currentTick int) bool {
	if currentTick <= position.Lower+config.ShiftLowerDistance {
		return true
	}
	if currentTick >= position.Upper+config.ShiftUpperDistance {
		return true
	}
	return false
}

// ComputeNewBounds centers the configured range offsets on centerTick.
// Callers align the center to tick spacing first.
func ComputeNewBounds(centerTick int, config PoolConfig) TickRange {
	return TickRange{
		Lower: centerTick + config.PositionRangeLower,
		Upper: centerTick + config.PositionRangeUpper,
	}
}
