package ui

import "strings"

var sparkRamp = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws the newest width samples as a row of block characters
// scaled to the largest of them. Fewer samples are padded on the left with
// the lowest block, so the result is always width runes.
func Sparkline(samples []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}

	peak := 0.0
	for _, v := range samples {
		peak = max(peak, v)
	}

	var b strings.Builder
	b.Grow(width * len(string(sparkRamp[0])))
	for range width - len(samples) {
		b.WriteRune(sparkRamp[0])
	}
	top := len(sparkRamp) - 1
	for _, v := range samples {
		level := 0
		if peak > 0 && v > 0 {
			level = min(int(v/peak*float64(top)), top)
		}
		b.WriteRune(sparkRamp[level])
	}
	return b.String()
}
