// Package quality rates text for use as fine-tuning data.
//
// A score is the sum of four 0-25 components (length, readability, vocabulary
// diversity and content hygiene) and always lands in [0,100]. Scoring is a pure
// function of the text.
package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Grade buckets an overall score.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeOkay      Grade = "okay"
	GradePoor      Grade = "poor"
	GradeJunk      Grade = "junk"
)

// Grades lists every grade from best to worst.
var Grades = []Grade{GradeExcellent, GradeGood, GradeOkay, GradePoor, GradeJunk}

// GradeFor maps a 0-100 score to its grade.
func GradeFor(score int) Grade {
	switch {
	case score >= 80:
		return GradeExcellent
	case score >= 60:
		return GradeGood
	case score >= 40:
		return GradeOkay
	case score >= 20:
		return GradePoor
	default:
		return GradeJunk
	}
}

// Breakdown holds the per-component scores, each in [0,25].
type Breakdown struct {
	Length      int `json:"length"`
	Readability int `json:"readability"`
	Diversity   int `json:"diversity"`
	Content     int `json:"content"`
}

func (b Breakdown) total() int {
	return b.Length + b.Readability + b.Diversity + b.Content
}

// Result is the full outcome of scoring one text.
type Result struct {
	Overall   int       `json:"overall"`
	WordCount int       `json:"word_count"`
	Grade     Grade     `json:"grade"`
	Issues    []string  `json:"issues"`
	Details   Breakdown `json:"details"`
}

var boilerplatePhrases = []string{
	"cookie", "privacy policy", "terms of service", "subscribe",
	"click here", "sign up", "log in", "copyright ©",
	"all rights reserved", "newsletter", "advertisement",
}

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+\s+`)
	urlPattern    = regexp.MustCompile(`https?://\S+`)
)

// Score rates content. It never fails: empty or junk text simply scores low.
func Score(content string) Result {
	if strings.TrimSpace(content) == "" {
		return Result{
			Overall: 0,
			Grade:   GradeJunk,
			Issues:  []string{"empty content"},
		}
	}

	words := strings.Fields(content)
	wordCount := len(words)
	sentenceCount := max(len(splitSentences(content)), 1)

	var issues []string
	var d Breakdown

	switch {
	case wordCount < 20:
		d.Length = 0
		issues = append(issues, "very short (<20 words)")
	case wordCount < 50:
		d.Length = 8
		issues = append(issues, "short content (<50 words)")
	case wordCount < 100:
		d.Length = 15
	case wordCount < 2000:
		d.Length = 25
	default:
		d.Length = 20
		issues = append(issues, "very long (>2000 words), may need chunking")
	}

	avgSentence := float64(wordCount) / float64(sentenceCount)
	switch {
	case avgSentence < 5:
		d.Readability = 8
		issues = append(issues, "very short sentences (fragments?)")
	case avgSentence < 10:
		d.Readability = 18
	case avgSentence < 25:
		d.Readability = 25
	case avgSentence < 40:
		d.Readability = 15
		issues = append(issues, "sentences are very long")
	default:
		d.Readability = 5
		issues = append(issues, "extremely long sentences (wall of text)")
	}

	diversity := vocabularyDiversity(words)
	switch {
	case diversity < 0.15:
		d.Diversity = 5
		issues = append(issues, "very repetitive vocabulary")
	case diversity < 0.30:
		d.Diversity = 15
	case diversity < 0.60:
		d.Diversity = 25
	default:
		d.Diversity = 20
	}

	var contentIssues []string
	d.Content, contentIssues = contentScore(content, sentenceCount)
	issues = append(issues, contentIssues...)

	overall := min(max(d.total(), 0), 100)
	return Result{
		Overall:   overall,
		WordCount: wordCount,
		Grade:     GradeFor(overall),
		Issues:    issues,
		Details:   d,
	}
}

// Value is Score(content).Overall.
func Value(content string) int {
	return Score(content).Overall
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// vocabularyDiversity is the share of distinct words longer than two letters.
func vocabularyDiversity(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	unique := make(map[string]struct{})
	for _, w := range words {
		if utf8.RuneCountInString(w) > 2 {
			unique[strings.ToLower(w)] = struct{}{}
		}
	}
	return float64(len(unique)) / float64(len(words))
}

func contentScore(content string, sentenceCount int) (int, []string) {
	score := 25
	var issues []string

	lower := strings.ToLower(content)
	hits := 0
	for _, p := range boilerplatePhrases {
		if strings.Contains(lower, p) {
			hits++
		}
	}
	switch {
	case hits >= 4:
		score -= 15
		issues = append(issues, fmt.Sprintf("looks like boilerplate/navigation (%d patterns)", hits))
	case hits >= 2:
		score -= 5
	}

	urls := len(urlPattern.FindAllStringIndex(content, -1))
	if float64(urls)/float64(sentenceCount) > 0.5 {
		score -= 10
		issues = append(issues, "too many URLs (link dump?)")
	}

	var letters, digits, total int
	for _, r := range content {
		total++
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	total = max(total, 1)
	if float64(letters)/float64(total) < 0.4 {
		score -= 10
		issues = append(issues, "low alphabetic content (code/symbols heavy)")
	}
	if float64(digits)/float64(total) > 0.3 {
		score -= 8
		issues = append(issues, "high number density (data table?)")
	}

	return max(score, 0), issues
}
