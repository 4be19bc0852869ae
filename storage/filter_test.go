package storage

import (
	"testing"

	"meptrack-api/domain"
)

func TestODataFilterEquals(t *testing.T) {
	got, err := odataFilter(domain.FieldEquals{Field: domain.FieldStatus, Value: "active"})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if got != "Status eq 'active'" {
		t.Fatalf("unexpected filter: %q", got)
	}
}

func TestODataFilterEscapesQuotes(t *testing.T) {
	got, err := odataFilter(domain.FieldEquals{Field: domain.FieldCountry, Value: "C'ôte"})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if got != "Country eq 'C''ôte'" {
		t.Fatalf("unexpected filter: %q", got)
	}
}

func TestODataFilterInSet(t *testing.T) {
	got, err := odataFilter(domain.FieldIn{Field: domain.FieldGroupShort, Values: []string{"EPP", "S&D"}})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if got != "(PoliticalGroupShort eq 'EPP' or PoliticalGroupShort eq 'S&D')" {
		t.Fatalf("unexpected filter: %q", got)
	}
}

func TestODataFilterAnd(t *testing.T) {
	f := domain.And{Filters: []domain.Filter{
		domain.FieldEquals{Field: domain.FieldStatus, Value: "active"},
		domain.FieldEquals{Field: domain.FieldCountry, Value: "DE"},
	}}
	got, err := odataFilter(f)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if got != "(Status eq 'active' and Country eq 'DE')" {
		t.Fatalf("unexpected filter: %q", got)
	}
}

func TestODataFilterRejectsUnknownField(t *testing.T) {
	if _, err := odataFilter(domain.FieldEquals{Field: "photo_url", Value: "x"}); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestODataFilterRejectsEmptyCombinators(t *testing.T) {
	if _, err := odataFilter(domain.And{}); err == nil {
		t.Fatal("expected error for empty and")
	}
	if _, err := odataFilter(domain.FieldIn{Field: domain.FieldStatus}); err == nil {
		t.Fatal("expected error for empty in-set")
	}
}
