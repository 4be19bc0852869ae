package storage

import (
	"fmt"
	"strings"

	"meptrack-api/domain"
)

// fieldColumns maps the domain's queryable field names onto table columns.
// This is the only place the two vocabularies meet.
var fieldColumns = map[string]string{
	domain.FieldStatus:     "Status",
	domain.FieldCountry:    "Country",
	domain.FieldGroupShort: "PoliticalGroupShort",
	domain.FieldMepID:      "MepID",
}

// odataFilter serializes a typed filter into the table service's OData dialect.
// It is the single adapter between the core's filter expressions and the
// store's query syntax; nothing else builds filter strings.
func odataFilter(f domain.Filter) (string, error) {
	switch v := f.(type) {
	case domain.FieldEquals:
		col, err := column(v.Field)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s eq '%s'", col, escape(v.Value)), nil
	case domain.FieldIn:
		col, err := column(v.Field)
		if err != nil {
			return "", err
		}
		if len(v.Values) == 0 {
			return "", fmt.Errorf("filter: in-set for %q has no values", v.Field)
		}
		parts := make([]string, len(v.Values))
		for i, val := range v.Values {
			parts[i] = fmt.Sprintf("%s eq '%s'", col, escape(val))
		}
		return "(" + strings.Join(parts, " or ") + ")", nil
	case domain.And:
		if len(v.Filters) == 0 {
			return "", fmt.Errorf("filter: empty and-combinator")
		}
		parts := make([]string, len(v.Filters))
		for i, inner := range v.Filters {
			s, err := odataFilter(inner)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "(" + strings.Join(parts, " and ") + ")", nil
	default:
		return "", fmt.Errorf("filter: unsupported expression %T", f)
	}
}

func column(field string) (string, error) {
	col, ok := fieldColumns[field]
	if !ok {
		return "", fmt.Errorf("filter: unknown field %q", field)
	}
	return col, nil
}

// escape doubles single quotes per the OData string literal rules.
func escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}
