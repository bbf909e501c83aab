package app

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"proficiency-exam-service/internal/domain"
)

// Grade scores every question of t against answers. It is a pure function: missing or
// malformed answers score zero and never produce an error.
func Grade(t domain.ExamTemplate, answers map[string]any) []domain.QuestionOutcome {
	outcomes := make([]domain.QuestionOutcome, 0, len(t.Sections))
	for _, section := range t.Sections {
		for _, q := range section.Questions {
			answer, present := answers[q.ID]
			correct, review := gradeQuestion(q, answer, present)
			out := domain.QuestionOutcome{
				QuestionID:  q.ID,
				SectionID:   section.ID,
				Correct:     correct,
				NeedsReview: review,
			}
			if correct {
				out.PointsAwarded = q.Points
			}
			outcomes = append(outcomes, out)
		}
	}
	return outcomes
}

// gradeQuestion reports (correct, needsReview) for one question.
func gradeQuestion(q domain.Question, answer any, present bool) (bool, bool) {
	switch k := q.Key.(type) {
	case domain.MultipleChoice:
		idx, ok := asIndex(answer)
		return present && ok && idx == k.CorrectIndex, false
	case domain.TrueFalse:
		b, ok := asBool(answer)
		return present && ok && b == k.Correct, false
	case domain.FillBlank:
		s, ok := answer.(string)
		return present && ok && textMatches(s, k.Answer), false
	case domain.ShortAnswer:
		s, ok := answer.(string)
		return present && ok && textMatches(s, k.Answer), false
	case domain.Audio:
		s, ok := answer.(string)
		return present && ok && textMatches(s, k.Transcript), false
	case domain.Essay:
		return false, true
	default:
		return false, false
	}
}

// textMatches compares trimmed, NFC-normalized, case-folded strings. An empty key never matches.
func textMatches(given, want string) bool {
	w := normalizeText(want)
	return w != "" && normalizeText(given) == w
}

func normalizeText(s string) string {
	// Casers are stateful; build one per call.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

func asIndex(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(b)))
		return parsed, err == nil
	default:
		return false, false
	}
}
