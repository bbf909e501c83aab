package domain

import (
	"encoding/json"
	"fmt"
)

// QuestionKind names one member of the closed set of question kinds.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindTrueFalse      QuestionKind = "true-false"
	KindFillBlank      QuestionKind = "fill-blank"
	KindShortAnswer    QuestionKind = "short-answer"
	KindEssay          QuestionKind = "essay"
	KindAudio          QuestionKind = "audio"
)

// AnswerKey is the kind-specific part of a question: what a correct response looks like.
// The set of implementations is closed; see the kind constructors below.
type AnswerKey interface {
	Kind() QuestionKind
	isAnswerKey()
}

// MultipleChoice is answered with the zero-based index of one option.
type MultipleChoice struct {
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// TrueFalse is answered with a boolean.
type TrueFalse struct {
	Correct bool `json:"correct"`
}

// FillBlank is answered with the text that completes the prompt.
type FillBlank struct {
	Answer string `json:"answer"`
}

// ShortAnswer is answered with a short free-text string.
type ShortAnswer struct {
	Answer string `json:"answer"`
}

// Essay has no machine-checkable answer.
type Essay struct {
	MinWords int    `json:"minWords,omitempty"`
	Rubric   string `json:"rubric,omitempty"`
}

// Audio is answered with a transcript of the referenced recording.
type Audio struct {
	AudioURL   string `json:"audioUrl,omitempty"`
	Transcript string `json:"transcript"`
}

func (MultipleChoice) Kind() QuestionKind { return KindMultipleChoice }
func (TrueFalse) Kind() QuestionKind      { return KindTrueFalse }
func (FillBlank) Kind() QuestionKind      { return KindFillBlank }
func (ShortAnswer) Kind() QuestionKind    { return KindShortAnswer }
func (Essay) Kind() QuestionKind          { return KindEssay }
func (Audio) Kind() QuestionKind          { return KindAudio }

func (MultipleChoice) isAnswerKey() {}
func (TrueFalse) isAnswerKey()      {}
func (FillBlank) isAnswerKey()      {}
func (ShortAnswer) isAnswerKey()    {}
func (Essay) isAnswerKey()          {}
func (Audio) isAnswerKey()          {}

// Difficulty is a free authoring tag.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is a single gradable item within a section.
type Question struct {
	ID          string     `json:"id"`
	Prompt      string     `json:"prompt" validate:"required"`
	Points      int        `json:"points" validate:"gt=0"`
	Hint        string     `json:"hint,omitempty"`
	Explanation string     `json:"explanation,omitempty"`
	Difficulty  Difficulty `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	Tags        []string   `json:"tags,omitempty"`
	Key         AnswerKey  `json:"-" validate:"-"`
}

// Kind returns the question kind, or "" when no answer key is set.
func (q Question) Kind() QuestionKind {
	if q.Key == nil {
		return ""
	}
	return q.Key.Kind()
}

// RedactedKey is what students see of an answer key: the kind and the material
// needed to answer, never the answer itself. It is never graded or stored.
type RedactedKey struct {
	Type     QuestionKind `json:"-"`
	Options  []string     `json:"options,omitempty"`
	AudioURL string       `json:"audioUrl,omitempty"`
	MinWords int          `json:"minWords,omitempty"`
}

func (k RedactedKey) Kind() QuestionKind { return k.Type }
func (RedactedKey) isAnswerKey()         {}

// WithoutAnswer returns a copy safe to show to students.
func (q Question) WithoutAnswer() Question {
	if q.Key != nil {
		r := RedactedKey{Type: q.Key.Kind()}
		switch k := q.Key.(type) {
		case MultipleChoice:
			r.Options = append([]string(nil), k.Options...)
		case Essay:
			r.MinWords = k.MinWords
		case Audio:
			r.AudioURL = k.AudioURL
		}
		q.Key = r
	}
	q.Explanation = ""
	return q
}

type questionAlias Question

type questionJSON struct {
	questionAlias
	Type   QuestionKind    `json:"type"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

// MarshalJSON flattens the answer key under "type" and "answer".
func (q Question) MarshalJSON() ([]byte, error) {
	out := questionJSON{questionAlias: questionAlias(q)}
	if q.Key != nil {
		raw, err := json.Marshal(q.Key)
		if err != nil {
			return nil, err
		}
		out.Type = q.Key.Kind()
		if string(raw) != "{}" {
			out.Answer = raw
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the answer key according to "type".
func (q *Question) UnmarshalJSON(data []byte) error {
	var in questionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*q = Question(in.questionAlias)
	if in.Type == "" {
		q.Key = nil
		return nil
	}
	key, err := decodeAnswerKey(in.Type, in.Answer)
	if err != nil {
		return err
	}
	q.Key = key
	return nil
}

func decodeAnswerKey(kind QuestionKind, raw json.RawMessage) (AnswerKey, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch kind {
	case KindMultipleChoice:
		var k MultipleChoice
		err := json.Unmarshal(raw, &k)
		return k, err
	case KindTrueFalse:
		var k TrueFalse
		err := json.Unmarshal(raw, &k)
		return k, err
	case KindFillBlank:
		var k FillBlank
		err := json.Unmarshal(raw, &k)
		return k, err
	case KindShortAnswer:
		var k ShortAnswer
		err := json.Unmarshal(raw, &k)
		return k, err
	case KindEssay:
		var k Essay
		err := json.Unmarshal(raw, &k)
		return k, err
	case KindAudio:
		var k Audio
		err := json.Unmarshal(raw, &k)
		return k, err
	default:
		return nil, fmt.Errorf("unknown question type %q", kind)
	}
}
