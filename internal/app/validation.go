package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"proficiency-exam-service/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs tag validation and converts failures to a *domain.ValidationError.
func validateStruct(s any) *domain.ValidationError {
	ve := &domain.ValidationError{}
	err := validate.Struct(s)
	if err == nil {
		return ve
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		ve.Add("", err.Error())
		return ve
	}
	for _, fe := range verrs {
		ve.Add(fieldPath(fe.Namespace()), describe(fe))
	}
	return ve
}

// fieldPath drops the root struct name: "ExamTemplate.sections[0].title" -> "sections[0].title".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// validateTemplate checks authored content. When publishable is set it additionally
// requires at least one section and a positive point total.
func validateTemplate(t domain.ExamTemplate, publishable bool) error {
	ve := validateStruct(t)
	seen := make(map[string]bool)
	for si, s := range t.Sections {
		if seen[s.ID] {
			ve.Add(fmt.Sprintf("sections[%d].id", si), "duplicate id")
		}
		seen[s.ID] = true
		for qi, q := range s.Questions {
			if seen[q.ID] {
				ve.Add(fmt.Sprintf("sections[%d].questions[%d].id", si, qi), "duplicate id")
			}
			seen[q.ID] = true
			validateAnswerKey(fmt.Sprintf("sections[%d].questions[%d].answer", si, qi), q, ve)
		}
	}
	if publishable {
		if len(t.Sections) == 0 {
			ve.Add("sections", "at least one section is required to publish")
		}
		if t.TotalPoints <= 0 {
			ve.Add("totalPoints", "must be greater than 0 to publish")
		}
	}
	return ve.OrNil()
}

func validateAnswerKey(path string, q domain.Question, ve *domain.ValidationError) {
	switch k := q.Key.(type) {
	case nil:
		ve.Add(path, "question type is required")
	case domain.RedactedKey:
		ve.Add(path, "answer key is required")
	case domain.MultipleChoice:
		if len(k.Options) < 2 {
			ve.Add(path+".options", "at least two options are required")
		}
		for i, opt := range k.Options {
			if strings.TrimSpace(opt) == "" {
				ve.Add(fmt.Sprintf("%s.options[%d]", path, i), "is required")
			}
		}
		if k.CorrectIndex < 0 || k.CorrectIndex >= len(k.Options) {
			ve.Add(path+".correctIndex", "must reference an option")
		}
	case domain.TrueFalse:
	case domain.FillBlank:
		if strings.TrimSpace(k.Answer) == "" {
			ve.Add(path+".answer", "is required")
		}
	case domain.ShortAnswer:
		if strings.TrimSpace(k.Answer) == "" {
			ve.Add(path+".answer", "is required")
		}
	case domain.Essay:
		if k.MinWords < 0 {
			ve.Add(path+".minWords", "must be at least 0")
		}
	case domain.Audio:
		if strings.TrimSpace(k.Transcript) == "" {
			ve.Add(path+".transcript", "is required")
		}
	}
}
