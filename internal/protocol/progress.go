package protocol

import "fmt"

// Progress is a worker-reported progress value: either a completion ratio
// or, when the report did not parse as numbers, the report's text kept
// verbatim for display.
type Progress struct {
	ratio  float64
	text   string
	isText bool
}

// RatioProgress returns a numeric progress where 1 means complete.
func RatioProgress(ratio float64) Progress {
	return Progress{ratio: ratio}
}

// TextProgress returns a free-form progress shown as-is.
func TextProgress(text string) Progress {
	return Progress{text: text, isText: true}
}

// Ratio returns the completion ratio and whether the progress is numeric.
func (p Progress) Ratio() (float64, bool) {
	return p.ratio, !p.isText
}

// String formats numeric progress as a percentage with two decimals and
// text progress verbatim. The zero value formats as "0.00%".
func (p Progress) String() string {
	if p.isText {
		return p.text
	}
	return fmt.Sprintf("%.2f%%", p.ratio*100)
}
