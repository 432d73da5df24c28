package validator

import (
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Tags reported by the authoring rules.
const (
	tagOptionsRequired = "options_required"
	tagCorrectOption   = "correct_option"
	tagNoOptions       = "no_options"
	tagUniqueOrder     = "unique_order"
	tagTrueFalse       = "true_false_options"
)

var domainMessages = map[string]string{
	tagOptionsRequired: "{0} needs at least two options for this question type",
	tagCorrectOption:   "{0} must mark at least one option as correct",
	tagNoOptions:       "{0} is not allowed for this question type",
	tagUniqueOrder:     "{0} contains a duplicate order_number",
	tagTrueFalse:       "{0} must have exactly two options with one correct",
}

func registerDomainRules(v *govalidator.Validate, trans ut.Translator) {
	v.RegisterStructValidation(questionRules, model.AddQuestionRequest{})

	for tag, msg := range domainMessages {
		_ = v.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
			return ut.Add(tag, msg, true)
		}, func(ut ut.Translator, fe govalidator.FieldError) string {
			t, _ := ut.T(fe.Tag(), fe.Field())
			return t
		})
	}
}

// questionRules checks the option set against the question type.
func questionRules(sl govalidator.StructLevel) {
	req := sl.Current().Interface().(model.AddQuestionRequest)
	qt := model.QuestionType(req.Type)
	if !qt.Valid() {
		return
	}

	if !qt.UsesOptions() {
		if len(req.Options) > 0 {
			sl.ReportError(req.Options, "options", "Options", tagNoOptions, "")
		}
		return
	}

	if len(req.Options) < 2 {
		sl.ReportError(req.Options, "options", "Options", tagOptionsRequired, "")
		return
	}

	correct := 0
	seen := make(map[int]bool, len(req.Options))
	for _, o := range req.Options {
		if o.IsCorrect {
			correct++
		}
		if seen[o.OrderNumber] {
			sl.ReportError(req.Options, "options", "Options", tagUniqueOrder, "")
			return
		}
		seen[o.OrderNumber] = true
	}

	switch {
	case qt == model.QuestionTypeTrueFalse && (len(req.Options) != 2 || correct != 1):
		sl.ReportError(req.Options, "options", "Options", tagTrueFalse, "")
	case correct == 0:
		sl.ReportError(req.Options, "options", "Options", tagCorrectOption, "")
	}
}
