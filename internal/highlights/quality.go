package highlights

import "strings"

// Quality summarizes a highlight selection.
type Quality struct {
	Count              int     `json:"count"`
	Coverage           float64 `json:"coverage"`
	MeanDuration       float64 `json:"mean_duration"`
	TitleQuality       float64 `json:"title_quality"`
	DescriptionQuality float64 `json:"description_quality"`
	Overall            string  `json:"overall"`
}

// Measure computes Quality for hs against the source duration. Titles of
// two to six words and descriptions longer than ten characters count as
// well formed.
func Measure(hs []Highlight, duration float64) Quality {
	q := Quality{Count: len(hs)}
	if len(hs) == 0 {
		q.Overall = "none"
		return q
	}
	var total float64
	var titles, descriptions int
	for _, h := range hs {
		total += h.Duration()
		if n := len(strings.Fields(h.Title)); n >= 2 && n <= 6 {
			titles++
		}
		if len(strings.TrimSpace(h.Description)) > 10 {
			descriptions++
		}
	}
	if duration > 0 {
		q.Coverage = total / duration
	}
	q.MeanDuration = total / float64(len(hs))
	q.TitleQuality = float64(titles) / float64(len(hs))
	q.DescriptionQuality = float64(descriptions) / float64(len(hs))

	score := q.TitleQuality*0.5 + q.DescriptionQuality*0.5
	switch {
	case score >= 0.8:
		q.Overall = "excellent"
	case score >= 0.6:
		q.Overall = "good"
	case score >= 0.4:
		q.Overall = "acceptable"
	default:
		q.Overall = "poor"
	}
	return q
}
