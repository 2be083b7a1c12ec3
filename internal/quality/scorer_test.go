package quality

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

const richParagraph = `Modern anti-cheat systems combine several layers of defense to protect competitive games.
Kernel drivers inspect memory regions for unexpected modifications while the game is running.
Server-side analytics compare player statistics against population baselines to flag improbable accuracy.
Replay review lets human moderators confirm suspicious behaviour before any ban is issued.
Developers also obfuscate network packets so that simple proxies cannot rewrite movement data.
Each approach has tradeoffs in privacy, performance, and the rate of false positives.
Teams usually publish transparency reports describing how many accounts were removed each season.
Balancing strict enforcement with a fair appeals process keeps communities healthy over time.
Clear documentation helps players understand which third-party tools are allowed.`

// generateText builds n distinct words split into sentences of perSentence words.
func generateText(n, perSentence int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "word%d", i)
		if (i+1)%perSentence == 0 {
			b.WriteByte('.')
		}
	}
	return b.String()
}

func TestScore_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t "} {
		r := Score(in)
		if r.Overall != 0 {
			t.Errorf("Score(%q).Overall = %d, want 0", in, r.Overall)
		}
		if r.Grade != GradeJunk {
			t.Errorf("Score(%q).Grade = %q, want %q", in, r.Grade, GradeJunk)
		}
		if len(r.Issues) != 1 || r.Issues[0] != "empty content" {
			t.Errorf("Score(%q).Issues = %v", in, r.Issues)
		}
	}
}

func TestScore_ShortRepetitive(t *testing.T) {
	r := Score("spam spam spam spam")

	want := Breakdown{Length: 0, Readability: 8, Diversity: 15, Content: 25}
	if r.Details != want {
		t.Errorf("Details = %+v, want %+v", r.Details, want)
	}
	if r.Overall != 48 {
		t.Errorf("Overall = %d, want 48", r.Overall)
	}
	if r.Grade != GradeOkay {
		t.Errorf("Grade = %q, want %q", r.Grade, GradeOkay)
	}
	if r.WordCount != 4 {
		t.Errorf("WordCount = %d, want 4", r.WordCount)
	}
}

func TestScore_RichBeatsRepetitive(t *testing.T) {
	rich := Score(richParagraph)
	poor := Score("spam spam spam spam")

	if rich.Overall <= poor.Overall {
		t.Errorf("rich paragraph scored %d, not above repetitive text %d", rich.Overall, poor.Overall)
	}
	if rich.Overall < 80 {
		t.Errorf("rich paragraph Overall = %d (%+v), want >= 80", rich.Overall, rich.Details)
	}
	if rich.Details.Length != 25 || rich.Details.Readability != 25 {
		t.Errorf("rich paragraph Details = %+v, want full length and readability", rich.Details)
	}
	if rich.Overall <= Score("").Overall {
		t.Error("empty content should be the minimum")
	}
}

func TestScore_LengthBands(t *testing.T) {
	tests := []struct {
		words int
		want  int
	}{
		{10, 0},
		{30, 8},
		{60, 15},
		{500, 25},
		{2500, 20},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_words", tt.words), func(t *testing.T) {
			r := Score(generateText(tt.words, 12))
			if r.Details.Length != tt.want {
				t.Errorf("Length = %d, want %d", r.Details.Length, tt.want)
			}
			if r.WordCount != tt.words {
				t.Errorf("WordCount = %d, want %d", r.WordCount, tt.words)
			}
		})
	}
}

func TestScore_ReadabilityBands(t *testing.T) {
	tests := []struct {
		perSentence int
		want        int
	}{
		{3, 8},
		{7, 18},
		{15, 25},
		{30, 15},
		{60, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_per_sentence", tt.perSentence), func(t *testing.T) {
			r := Score(generateText(600, tt.perSentence))
			if r.Details.Readability != tt.want {
				t.Errorf("Readability = %d, want %d", r.Details.Readability, tt.want)
			}
		})
	}
}

func TestScore_ContentPenalties(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		want      int
		wantIssue string
	}{
		{
			name:      "boilerplate",
			text:      "Accept cookie settings. Read our privacy policy. See the terms of service. Subscribe to the newsletter.",
			want:      10,
			wantIssue: "boilerplate",
		},
		{
			name:      "link dump",
			text:      "See https://a.example/x and https://b.example/y now.",
			want:      15,
			wantIssue: "too many URLs",
		},
		{
			name:      "numbers",
			text:      "1234 5678 9012 3456 7890",
			want:      7,
			wantIssue: "number density",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Score(tt.text)
			if r.Details.Content != tt.want {
				t.Errorf("Content = %d, want %d", r.Details.Content, tt.want)
			}
			found := false
			for _, issue := range r.Issues {
				if strings.Contains(issue, tt.wantIssue) {
					found = true
				}
			}
			if !found {
				t.Errorf("Issues = %v, want one containing %q", r.Issues, tt.wantIssue)
			}
		})
	}
}

func TestScore_AlwaysInRange(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"!!!! ???? ....",
		strings.Repeat("cookie privacy policy terms of service subscribe click here sign up log in ", 50),
		strings.Repeat("https://x.example/a ", 40),
		strings.Repeat("0", 10000),
		generateText(5000, 200),
		richParagraph,
		"日本語のテキストです。とても良い文章です。",
	}
	for _, in := range inputs {
		r := Score(in)
		if r.Overall < 0 || r.Overall > 100 {
			t.Errorf("Score(%.30q).Overall = %d, outside [0,100]", in, r.Overall)
		}
		if r.Grade != GradeFor(r.Overall) {
			t.Errorf("Grade = %q inconsistent with Overall %d", r.Grade, r.Overall)
		}
		for _, c := range []int{r.Details.Length, r.Details.Readability, r.Details.Diversity, r.Details.Content} {
			if c < 0 || c > 25 {
				t.Errorf("component %d outside [0,25] in %+v", c, r.Details)
			}
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	a := Score(richParagraph)
	b := Score(richParagraph)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Score not deterministic: %+v vs %+v", a, b)
	}
	if Value(richParagraph) != a.Overall {
		t.Errorf("Value = %d, want %d", Value(richParagraph), a.Overall)
	}
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score int
		want  Grade
	}{
		{100, GradeExcellent},
		{80, GradeExcellent},
		{79, GradeGood},
		{60, GradeGood},
		{59, GradeOkay},
		{40, GradeOkay},
		{39, GradePoor},
		{20, GradePoor},
		{19, GradeJunk},
		{0, GradeJunk},
	}
	for _, tt := range tests {
		if got := GradeFor(tt.score); got != tt.want {
			t.Errorf("GradeFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]string{"", "spam spam spam spam"})
	if s.Total != 2 {
		t.Errorf("Total = %d, want 2", s.Total)
	}
	if s.AvgScore != 24 {
		t.Errorf("AvgScore = %d, want 24", s.AvgScore)
	}
	if s.ByGrade[GradeJunk] != 1 || s.ByGrade[GradeOkay] != 1 {
		t.Errorf("ByGrade = %v", s.ByGrade)
	}

	empty := Summarize(nil)
	if empty.Total != 0 || empty.AvgScore != 0 || len(empty.ByGrade) != len(Grades) {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}
