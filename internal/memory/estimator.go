package memory

// Tuning holds the memory sizing parameters, fixed at process start and
// validated by the config package.
type Tuning struct {
	MaxContextTokens int     // hard token ceiling for the short-term buffer
	Alpha            float64 // smoothing factor in (0, 1]
	KMin             int     // minimum interactions retained verbatim
	KMax             int     // maximum interactions retained verbatim
}

// Advance folds the current interaction's token count into the smoothed
// average and derives dynamicK, the number of most-recent interactions to
// keep verbatim. Pure function: state in, state out.
//
// Dense turns push the average up and shrink dynamicK so fewer verbose
// interactions are kept raw; sparse turns raise it. Alpha < 1 keeps a
// single outlier from dominating while still reacting within one turn.
func Advance(s SmoothingState, currentTokens int, t Tuning) (SmoothingState, int) {
	if !s.Initialized {
		s.SmoothedAvgTokens = float64(currentTokens)
		s.Initialized = true
	} else {
		s.SmoothedAvgTokens = t.Alpha*float64(currentTokens) + (1-t.Alpha)*s.SmoothedAvgTokens
	}
	if s.SmoothedAvgTokens < 0 {
		s.SmoothedAvgTokens = 0
	}

	// Floor the divisor at one token so an all-empty history cannot divide
	// by zero.
	avg := s.SmoothedAvgTokens
	if avg < 1 {
		avg = 1
	}

	dynamicK := int(float64(t.MaxContextTokens) / avg)
	if dynamicK < t.KMin {
		dynamicK = t.KMin
	}
	if dynamicK > t.KMax {
		dynamicK = t.KMax
	}
	return s, dynamicK
}
