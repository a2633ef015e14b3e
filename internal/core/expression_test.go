package core

import (
	"errors"
	"strings"
	"testing"

	"inmoelegance/pkg/domain"
)

func TestExpressionCacheCompilesOnce(t *testing.T) {
	cache := NewExpressionCache(2)
	first, err := cache.Compile("bedrooms >= 3")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	again, err := cache.Compile("bedrooms >= 3")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if first != again {
		t.Fatalf("expected cached program to be reused")
	}
	if _, err := cache.Compile("price < 100"); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := cache.Compile("area > 10"); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected cache bounded to 2 programs, got %d", cache.Len())
	}
}

func TestExpressionCacheRejectsInvalidExpressions(t *testing.T) {
	cache := NewExpressionCache(0)
	cases := []string{
		"price >",
		"price + 1",
		"unknown_field == 1",
	}
	for _, expression := range cases {
		_, err := cache.Compile(expression)
		if !errors.Is(err, ErrInvalidQuery) {
			t.Fatalf("expected invalid query for %q, got %v", expression, err)
		}
		var qe *QueryError
		if !errors.As(err, &qe) || qe.Param != "expr" || qe.Value != expression {
			t.Fatalf("unexpected error shape %#v", err)
		}
	}
	if cache.Len() != 0 {
		t.Fatalf("invalid programs must not be cached")
	}
}

func TestExpressionPredicateEvaluatesListingFields(t *testing.T) {
	cache := NewExpressionCache(0)
	p := validListing()
	p.Garage = true
	p.PetsAllowed = true
	p.Year = 2019
	p.Features = []string{"Piscina", "Vista al mar"}

	cases := []struct {
		expression string
		want       bool
	}{
		{`type == "Apartamento" && operation == "Venta"`, true},
		{`price <= 450000 and bedrooms == 3`, true},
		{`garage && pets_allowed && !furnished`, true},
		{`"Piscina" in features`, true},
		{`any(features, {# startsWith "Vista"})`, true},
		{`year >= 2020`, false},
		{`rating > 4.9 || featured`, false},
		{`location contains "Este"`, true},
		{`lower(title) matches "frente"`, true},
	}
	for _, tc := range cases {
		match, err := cache.Predicate(tc.expression)
		if err != nil {
			t.Fatalf("compile %q: %v", tc.expression, err)
		}
		got, err := match(p)
		if err != nil {
			t.Fatalf("run %q: %v", tc.expression, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %v want %v", tc.expression, got, tc.want)
		}
	}
}

func TestExpressionPredicateReportsRuntimeErrors(t *testing.T) {
	match, err := NewExpressionCache(0).Predicate(`features[3] == "x"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	p := Property{Type: domain.PropertyTypeHouse, Features: []string{"Piscina"}}
	if _, err := match(p); err == nil || !strings.Contains(err.Error(), "expr") {
		t.Fatalf("expected runtime error, got %v", err)
	}
}
