package highlights

import (
	"encoding/json"
	"fmt"
)

// Highlight is one selected window of the source, in seconds.
type Highlight struct {
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Duration returns End-Start.
func (h Highlight) Duration() float64 {
	return h.End - h.Start
}

// UnmarshalJSON accepts both start/end and the start_time/end_time names the
// model is prompted with.
func (h *Highlight) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start       *float64 `json:"start"`
		End         *float64 `json:"end"`
		StartTime   *float64 `json:"start_time"`
		EndTime     *float64 `json:"end_time"`
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Keywords    []string `json:"keywords"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, end := raw.Start, raw.End
	if start == nil {
		start = raw.StartTime
	}
	if end == nil {
		end = raw.EndTime
	}
	if start == nil || end == nil {
		return fmt.Errorf("highlight requires start and end")
	}
	*h = Highlight{
		Start:       *start,
		End:         *end,
		Title:       raw.Title,
		Description: raw.Description,
		Keywords:    raw.Keywords,
	}
	return nil
}

// Rejection records a proposal that failed validation.
type Rejection struct {
	Highlight Highlight `json:"highlight"`
	Reason    string    `json:"reason"`
}

// Rejection reasons.
const (
	ReasonRange     = "out_of_range"
	ReasonDuplicate = "duplicate"
	ReasonOverlap   = "overlap"
)
