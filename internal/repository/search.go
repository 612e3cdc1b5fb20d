package repository

import (
	"strings"

	"github.com/jwalitptl/mis-api/internal/model"
)

// SearchTerms splits a search string on whitespace and commas
func SearchTerms(search string) []string {
	return strings.FieldsFunc(search, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// ParseOrdering keeps the known fields of a comma-separated ordering
// parameter and falls back to the default when none remain.
func ParseOrdering(raw string) []model.OrderField {
	var fields []model.OrderField
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		desc := strings.HasPrefix(part, "-")
		name := strings.TrimPrefix(part, "-")
		if !model.ConsultationOrderFields[name] {
			continue
		}
		fields = append(fields, model.OrderField{Field: name, Desc: desc})
	}
	if len(fields) == 0 {
		return model.DefaultConsultationOrdering
	}
	return fields
}
