package quality

import "math"

// Summary aggregates scores over a batch of texts.
type Summary struct {
	Total    int           `json:"total"`
	AvgScore int           `json:"avg_score"`
	ByGrade  map[Grade]int `json:"by_grade"`
}

// Summarize scores every text and reports the rounded mean and grade counts.
func Summarize(contents []string) Summary {
	s := Summary{ByGrade: make(map[Grade]int, len(Grades))}
	for _, g := range Grades {
		s.ByGrade[g] = 0
	}
	if len(contents) == 0 {
		return s
	}

	total := 0
	for _, c := range contents {
		r := Score(c)
		total += r.Overall
		s.ByGrade[r.Grade]++
	}
	s.Total = len(contents)
	s.AvgScore = int(math.Round(float64(total) / float64(len(contents))))
	return s
}
