package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/errors"
	"github.com/gidsopenstandaarden/welldata-fhir/pkg/fhir/model"
)

// matches applies every recognized search parameter to a resource. Distinct
// parameters combine with AND; comma-separated values within one parameter
// combine with OR, following FHIR search semantics. Unknown parameters and
// result modifiers (_count, _sort and friends) are ignored.
func matches(resource model.Resource, params map[string][]string) (bool, error) {
	for name, values := range params {
		if strings.HasPrefix(name, "_") && name != "_id" {
			continue
		}
		for _, value := range values {
			match, err := matchParam(resource, name, value)
			if err != nil {
				return false, err
			}
			if !match {
				return false, nil
			}
		}
	}
	return true, nil
}

func matchParam(resource model.Resource, name, value string) (bool, error) {
	if name == "_id" {
		return anyOf(value, func(v string) (bool, error) {
			return resource.GetID() == v, nil
		})
	}
	switch r := resource.(type) {
	case *model.Patient:
		return matchPatientParam(r, name, value)
	case *model.Observation:
		return matchObservationParam(r, name, value)
	case *model.QuestionnaireResponse:
		return matchResponseParam(r, name, value)
	}
	// Unknown parameter on an unknown type filters nothing.
	return true, nil
}

func matchPatientParam(p *model.Patient, name, value string) (bool, error) {
	switch name {
	case "identifier":
		return anyOf(value, func(v string) (bool, error) {
			return matchIdentifiers(p.Identifier, v), nil
		})
	case "name":
		return anyOf(value, func(v string) (bool, error) {
			for _, n := range p.Name {
				if containsFold(n.Text, v) || containsFold(n.Family, v) {
					return true, nil
				}
				for _, given := range n.Given {
					if containsFold(given, v) {
						return true, nil
					}
				}
			}
			return false, nil
		})
	case "family":
		return anyOf(value, func(v string) (bool, error) {
			for _, n := range p.Name {
				if containsFold(n.Family, v) {
					return true, nil
				}
			}
			return false, nil
		})
	case "given":
		return anyOf(value, func(v string) (bool, error) {
			for _, n := range p.Name {
				for _, given := range n.Given {
					if containsFold(given, v) {
						return true, nil
					}
				}
			}
			return false, nil
		})
	case "birthdate":
		return anyOf(value, func(v string) (bool, error) {
			if p.BirthDate == "" {
				return false, nil
			}
			birth, err := time.Parse("2006-01-02", p.BirthDate)
			if err != nil {
				return false, nil
			}
			return matchDate(birth, v)
		})
	case "gender":
		return anyOf(value, func(v string) (bool, error) {
			return strings.EqualFold(p.Gender, v), nil
		})
	}
	return true, nil
}

func matchObservationParam(o *model.Observation, name, value string) (bool, error) {
	switch name {
	case "subject", "patient":
		return anyOf(value, func(v string) (bool, error) {
			return o.Subject != nil && matchReference(o.Subject.Reference, v, model.TypePatient), nil
		})
	case "code":
		return anyOf(value, func(v string) (bool, error) {
			return o.Code != nil && matchCodings(o.Code.Coding, v), nil
		})
	case "category":
		return anyOf(value, func(v string) (bool, error) {
			for _, c := range o.Category {
				if matchCodings(c.Coding, v) {
					return true, nil
				}
			}
			return false, nil
		})
	case "status":
		return anyOf(value, func(v string) (bool, error) {
			return strings.EqualFold(o.Status, v), nil
		})
	case "date":
		return anyOf(value, func(v string) (bool, error) {
			effective := o.EffectiveDateTime
			if effective == nil && o.EffectivePeriod != nil {
				effective = o.EffectivePeriod.Start
			}
			if effective == nil {
				return false, nil
			}
			return matchDate(effective.Time, v)
		})
	}
	return true, nil
}

func matchResponseParam(q *model.QuestionnaireResponse, name, value string) (bool, error) {
	switch name {
	case "subject", "patient":
		return anyOf(value, func(v string) (bool, error) {
			return q.Subject != nil && matchReference(q.Subject.Reference, v, model.TypePatient), nil
		})
	case "questionnaire":
		return anyOf(value, func(v string) (bool, error) {
			return q.Questionnaire == v, nil
		})
	case "status":
		return anyOf(value, func(v string) (bool, error) {
			return strings.EqualFold(q.Status, v), nil
		})
	case "author":
		return anyOf(value, func(v string) (bool, error) {
			return q.Author != nil && matchReference(q.Author.Reference, v, ""), nil
		})
	case "authored":
		return anyOf(value, func(v string) (bool, error) {
			if q.Authored == nil {
				return false, nil
			}
			return matchDate(q.Authored.Time, v)
		})
	case "identifier":
		return anyOf(value, func(v string) (bool, error) {
			if q.Identifier == nil {
				return false, nil
			}
			return matchIdentifiers([]model.Identifier{*q.Identifier}, v), nil
		})
	}
	return true, nil
}

// anyOf splits a comma-separated parameter value and succeeds when any part
// matches.
func anyOf(value string, match func(string) (bool, error)) (bool, error) {
	for _, part := range strings.Split(value, ",") {
		ok, err := match(strings.TrimSpace(part))
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// matchIdentifiers applies FHIR token matching: "value" matches any system,
// "system|value" matches both, "system|" matches any identifier under that
// system.
func matchIdentifiers(identifiers []model.Identifier, token string) bool {
	system, value, scoped := strings.Cut(token, "|")
	for _, ident := range identifiers {
		switch {
		case !scoped:
			if ident.Value == token {
				return true
			}
		case value == "":
			if ident.System == system {
				return true
			}
		default:
			if ident.System == system && ident.Value == value {
				return true
			}
		}
	}
	return false
}

func matchCodings(codings []model.Coding, token string) bool {
	system, code, scoped := strings.Cut(token, "|")
	for _, coding := range codings {
		switch {
		case !scoped:
			if coding.Code == token {
				return true
			}
		case code == "":
			if coding.System == system {
				return true
			}
		default:
			if coding.System == system && coding.Code == code {
				return true
			}
		}
	}
	return false
}

// matchReference tolerates the common spellings of a reference parameter:
// the full reference, a bare id, or "Type/id" when a default type is known.
func matchReference(reference, value, defaultType string) bool {
	if reference == "" || value == "" {
		return false
	}
	if reference == value {
		return true
	}
	if strings.HasSuffix(reference, "/"+value) {
		return true
	}
	if defaultType != "" && reference == defaultType+"/"+value {
		return true
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// matchDate implements FHIR date search with the eq, ne, gt, lt, ge and le
// prefixes at year, month, day or full timestamp granularity. A value with
// no prefix means eq.
func matchDate(t time.Time, param string) (bool, error) {
	prefix := "eq"
	value := param
	if len(param) >= 2 {
		switch param[:2] {
		case "eq", "ne", "gt", "lt", "ge", "le":
			prefix = param[:2]
			value = param[2:]
		}
	}

	start, end, err := dateRange(value)
	if err != nil {
		return false, err
	}
	switch prefix {
	case "eq":
		return !t.Before(start) && t.Before(end), nil
	case "ne":
		return t.Before(start) || !t.Before(end), nil
	case "gt":
		return !t.Before(end), nil
	case "ge":
		return !t.Before(start), nil
	case "lt":
		return t.Before(start), nil
	case "le":
		return t.Before(end), nil
	}
	return false, errors.NewInvalidError(fmt.Sprintf("unsupported date prefix %q", prefix), nil)
}

// dateRange expands a partial date to the half-open interval it covers.
func dateRange(value string) (time.Time, time.Time, error) {
	switch len(value) {
	case len("2006"):
		start, err := time.Parse("2006", value)
		if err != nil {
			return time.Time{}, time.Time{}, invalidDate(value, err)
		}
		return start, start.AddDate(1, 0, 0), nil
	case len("2006-01"):
		start, err := time.Parse("2006-01", value)
		if err != nil {
			return time.Time{}, time.Time{}, invalidDate(value, err)
		}
		return start, start.AddDate(0, 1, 0), nil
	case len("2006-01-02"):
		start, err := time.Parse("2006-01-02", value)
		if err != nil {
			return time.Time{}, time.Time{}, invalidDate(value, err)
		}
		return start, start.AddDate(0, 0, 1), nil
	default:
		start, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, time.Time{}, invalidDate(value, err)
		}
		return start, start.Add(time.Second), nil
	}
}

func invalidDate(value string, err error) error {
	return errors.NewInvalidError(fmt.Sprintf("invalid date value %q", value), err)
}
