// Package stability implements the stability filter state machine: it
// suppresses jittery low-confidence predictions and flags stable transitions.
package stability

// Observation is either a sign label (confidence met the threshold) or the
// zero value, meaning "null" in the FIFO-of-observations history.
type observation struct {
	label string
	valid bool
}

// Result is the outcome of feeding one raw prediction through the filter.
type Result struct {
	Sign       string
	Confidence float64
	IsStable   bool
	IsNewSign  bool
}

// Filter holds the bounded history and the last emitted stable sign.
type Filter struct {
	threshold float64
	size      int
	history   []observation
	stable    string
	hasStable bool
}

// New creates a Filter with history capacity size and the given confidence
// threshold.
func New(size int, threshold float64) *Filter {
	if size < 1 {
		size = 1
	}
	return &Filter{
		threshold: threshold,
		size:      size,
		history:   make([]observation, 0, size),
	}
}

// Update pushes one raw (label, confidence) observation and returns the
// derived stability result. label/confidence are the raw top-1 for this
// frame regardless of stability.
func (f *Filter) Update(label string, confidence float64) Result {
	var obs observation
	if confidence >= f.threshold {
		obs = observation{label: label, valid: true}
	}

	if len(f.history) == f.size {
		f.history = f.history[1:]
	}
	f.history = append(f.history, obs)

	isStable := false
	if len(f.history) == f.size {
		first := f.history[0]
		if first.valid {
			isStable = true
			for _, o := range f.history[1:] {
				if !o.valid || o.label != first.label {
					isStable = false
					break
				}
			}
		}
	}

	isNewSign := false
	if isStable {
		stableLabel := f.history[0].label
		if !f.hasStable || f.stable != stableLabel {
			isNewSign = true
		}
		f.stable = stableLabel
		f.hasStable = true
	}

	return Result{
		Sign:       label,
		Confidence: confidence,
		IsStable:   isStable,
		IsNewSign:  isNewSign,
	}
}
