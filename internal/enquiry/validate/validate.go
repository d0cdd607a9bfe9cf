// Package validate checks raw enquiry submissions against a company's schema and coerces their values.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"enquiry-socket/internal/enquiry/domain"
)

// rule checks and coerces one present, non-null value. It returns the coerced value or a field error
// without Loc set.
type rule func(v any) (any, *domain.FieldError)

type ruleFactory func(f domain.FieldDefinition) rule

var ruleFactories = map[domain.FieldType]ruleFactory{
	domain.FieldText:     textRule,
	domain.FieldEnum:     enumRule,
	domain.FieldDate:     dateRule,
	domain.FieldDateTime: dateTimeRule,
}

// passThrough is used for field types this service does not know; values are forwarded unchanged.
func passThrough(domain.FieldDefinition) rule {
	return func(v any) (any, *domain.FieldError) { return v, nil }
}

func ruleFor(f domain.FieldDefinition) rule {
	if factory, ok := ruleFactories[f.Type]; ok {
		return factory(f)
	}
	return passThrough(f)
}

// Validate applies schema to sub. Errors are accumulated: schema fields in schema order, then the
// submission-level fields. When errs is non-empty the returned submission must not be used.
func Validate(sub domain.Submission, schema *domain.Schema) (domain.ValidatedSubmission, domain.FieldErrors) {
	var errs domain.FieldErrors
	out := domain.ValidatedSubmission{
		Fields:     map[string]any{},
		Attributes: map[string]any{},
		Origin:     sub.Meta.Origin,
	}

	raw := sub.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	attrs := map[string]any{}
	attrsInvalid := false
	if v, ok := raw[domain.KeyAttributes]; ok && v != nil {
		m, isMap := v.(map[string]any)
		if isMap {
			attrs = m
		} else {
			attrsInvalid = true
		}
	}

	if schema != nil {
		for _, f := range schema.Visible {
			src, dst := raw, out.Fields
			if f.IsAttribute() {
				src, dst = attrs, out.Attributes
			}
			v, present := src[f.Field]
			if !present || v == nil {
				if f.Required {
					errs = append(errs, domain.FieldError{Loc: []string{f.Field}, Msg: "field required", Type: "value_error.missing"})
				}
				continue
			}
			coerced, fe := ruleFor(f)(v)
			if fe != nil {
				fe.Loc = []string{f.Field}
				errs = append(errs, *fe)
				continue
			}
			dst[f.Field] = coerced
		}
	}

	if attrsInvalid {
		errs = append(errs, domain.FieldError{Loc: []string{domain.KeyAttributes}, Msg: "value is not a valid dict", Type: "type_error.dict"})
	}

	switch v := raw[domain.KeyGrecaptchaResponse].(type) {
	case nil:
		errs = append(errs, domain.FieldError{Loc: []string{domain.KeyGrecaptchaResponse}, Msg: "field required", Type: "value_error.missing"})
	case string:
		out.GrecaptchaResponse = v
	default:
		errs = append(errs, strError(domain.KeyGrecaptchaResponse))
	}

	switch v := raw[domain.KeyTermsAndConditions].(type) {
	case nil:
	case bool:
		out.TermsAndConditions = v
	default:
		errs = append(errs, domain.FieldError{Loc: []string{domain.KeyTermsAndConditions}, Msg: "value could not be parsed to a boolean", Type: "type_error.bool"})
	}

	switch v := raw[domain.KeyUpstreamHTTPReferrer].(type) {
	case nil:
	case string:
		s := truncate(v, domain.MaxReferrerLength)
		out.UpstreamHTTPReferrer = &s
	default:
		errs = append(errs, strError(domain.KeyUpstreamHTTPReferrer))
	}

	if sub.Meta.Referrer != "" {
		s := truncate(sub.Meta.Referrer, domain.MaxReferrerLength)
		out.HTTPReferrer = &s
	}
	if sub.Meta.UserAgent != "" {
		s := sub.Meta.UserAgent
		out.UserAgent = &s
	}
	if sub.Meta.IPAddress != "" {
		s := sub.Meta.IPAddress
		out.IPAddress = &s
	}

	return out, errs
}

func strError(field string) domain.FieldError {
	return domain.FieldError{Loc: []string{field}, Msg: "str type expected", Type: "type_error.str"}
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func textRule(f domain.FieldDefinition) rule {
	return func(v any) (any, *domain.FieldError) {
		s, ok := v.(string)
		if !ok {
			return nil, &domain.FieldError{Msg: "str type expected", Type: "type_error.str"}
		}
		if f.MaxLength != nil && utf8.RuneCountInString(s) > *f.MaxLength {
			return nil, &domain.FieldError{
				Msg:  fmt.Sprintf("ensure this value has at most %d characters", *f.MaxLength),
				Type: "value_error.any_str.max_length",
				Ctx:  map[string]any{"limit_value": *f.MaxLength},
			}
		}
		return s, nil
	}
}

func enumRule(f domain.FieldDefinition) rule {
	permitted := make([]string, len(f.EnumValues))
	for i, ev := range f.EnumValues {
		permitted[i] = "'" + ev + "'"
	}
	msg := "value is not a valid enumeration member; permitted: " + strings.Join(permitted, ", ")
	return func(v any) (any, *domain.FieldError) {
		if s, ok := v.(string); ok {
			for _, ev := range f.EnumValues {
				if s == ev {
					return s, nil
				}
			}
		}
		values := make([]any, len(f.EnumValues))
		for i, ev := range f.EnumValues {
			values[i] = ev
		}
		return nil, &domain.FieldError{Msg: msg, Type: "type_error.enum", Ctx: map[string]any{"enum_values": values}}
	}
}
