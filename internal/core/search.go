package core

import (
	"math"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"

	"inmoelegance/pkg/domain"
)

// Filter sentinels accepted from the public explorer and the dashboard.
const (
	AnyLocation  = "Todas"
	AnyCount     = "Cualquiera"
	FeaturedYes  = "Destacada"
	FeaturedNo   = "No destacada"
	DefaultSort  = SortPriceDesc
	DefaultLimit = 12
	MaxPerPage   = 100
)

// SortKey orders explorer results.
type SortKey string

// Explorer sort keys.
const (
	SortPriceDesc SortKey = "price-desc"
	SortPriceAsc  SortKey = "price-asc"
	SortRating    SortKey = "rating"
	SortArea      SortKey = "area"
	SortNewest    SortKey = "newest"
)

// SortKeys lists accepted sort keys in display order.
var SortKeys = []SortKey{SortPriceDesc, SortPriceAsc, SortRating, SortArea, SortNewest}

// PropertyQuery captures the public explorer filters.
type PropertyQuery struct {
	Text      string
	Location  string
	Type      PropertyType
	Operation Operation
	Bedrooms  *int
	Bathrooms *int
	MinPrice  *float64
	MaxPrice  *float64
	Featured  *bool
	Sort      SortKey
	Page      int
	PerPage   int
	Expr      string
}

// SearchResult is one page of explorer results plus summary counts over the
// whole filtered set.
type SearchResult struct {
	Items         []Property `json:"items"`
	Total         int        `json:"total"`
	Featured      int        `json:"featured"`
	Page          int        `json:"page"`
	PerPage       int        `json:"per_page"`
	Pages         int        `json:"pages"`
	Locations     []string   `json:"locations"`
	AverageRating float64    `json:"average_rating"`
}

// ParsePropertyQuery reads explorer filters from URL query parameters.
func ParsePropertyQuery(values url.Values) (PropertyQuery, error) {
	q := PropertyQuery{
		Text:     strings.TrimSpace(values.Get("q")),
		Location: sentinel(values.Get("location"), AnyLocation),
		Sort:     DefaultSort,
		Page:     1,
		PerPage:  DefaultLimit,
		Expr:     strings.TrimSpace(values.Get("expr")),
	}
	var err error
	if q.Type, err = parseEnum("type", values.Get("type"), domain.PropertyTypes); err != nil {
		return PropertyQuery{}, err
	}
	if q.Operation, err = parseEnum("operation", values.Get("operation"), domain.Operations); err != nil {
		return PropertyQuery{}, err
	}
	if q.Bedrooms, err = parseCount("bedrooms", values.Get("bedrooms")); err != nil {
		return PropertyQuery{}, err
	}
	if q.Bathrooms, err = parseCount("bathrooms", values.Get("bathrooms")); err != nil {
		return PropertyQuery{}, err
	}
	if q.MinPrice, err = parsePrice("min_price", values.Get("min_price")); err != nil {
		return PropertyQuery{}, err
	}
	if q.MaxPrice, err = parsePrice("max_price", values.Get("max_price")); err != nil {
		return PropertyQuery{}, err
	}
	if q.Featured, err = parseFeatured(values.Get("featured")); err != nil {
		return PropertyQuery{}, err
	}
	if raw := strings.TrimSpace(values.Get("sort")); raw != "" {
		key := SortKey(raw)
		if !slices.Contains(SortKeys, key) {
			return PropertyQuery{}, &QueryError{Param: "sort", Value: raw, Reason: "unknown sort key"}
		}
		q.Sort = key
	}
	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return PropertyQuery{}, &QueryError{Param: "page", Value: raw, Reason: "must be a positive integer"}
		}
		q.Page = page
	}
	if raw := strings.TrimSpace(values.Get("per_page")); raw != "" {
		perPage, err := strconv.Atoi(raw)
		if err != nil || perPage < 1 {
			return PropertyQuery{}, &QueryError{Param: "per_page", Value: raw, Reason: "must be a positive integer"}
		}
		q.PerPage = min(perPage, MaxPerPage)
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return PropertyQuery{}, &QueryError{Param: "min_price", Value: values.Get("min_price"), Reason: "greater than max_price"}
	}
	return q, nil
}

// Encode renders the query back to URL parameters, omitting defaults.
func (q PropertyQuery) Encode() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("q", q.Text)
	set("location", q.Location)
	set("type", string(q.Type))
	set("operation", string(q.Operation))
	if q.Bedrooms != nil {
		v.Set("bedrooms", strconv.Itoa(*q.Bedrooms))
	}
	if q.Bathrooms != nil {
		v.Set("bathrooms", strconv.Itoa(*q.Bathrooms))
	}
	if q.MinPrice != nil {
		v.Set("min_price", strconv.FormatFloat(*q.MinPrice, 'f', -1, 64))
	}
	if q.MaxPrice != nil {
		v.Set("max_price", strconv.FormatFloat(*q.MaxPrice, 'f', -1, 64))
	}
	if q.Featured != nil {
		v.Set("featured", strconv.FormatBool(*q.Featured))
	}
	if q.Sort != "" && q.Sort != DefaultSort {
		v.Set("sort", string(q.Sort))
	}
	if q.PerPage != 0 && q.PerPage != DefaultLimit {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	set("expr", q.Expr)
	return v
}

// Matches reports whether p satisfies the structured filters (not Expr).
func (q PropertyQuery) Matches(p Property) bool {
	if q.Text != "" {
		needle := strings.ToLower(q.Text)
		if !strings.Contains(strings.ToLower(p.Title), needle) && !strings.Contains(strings.ToLower(p.Location), needle) {
			return false
		}
	}
	if q.Location != "" && p.Location != q.Location {
		return false
	}
	if q.Type != "" && p.Type != q.Type {
		return false
	}
	if q.Operation != "" && p.Operation != q.Operation {
		return false
	}
	if q.Bedrooms != nil && p.Bedrooms != *q.Bedrooms {
		return false
	}
	if q.Bathrooms != nil && p.Bathrooms != *q.Bathrooms {
		return false
	}
	if q.MinPrice != nil && p.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && p.Price > *q.MaxPrice {
		return false
	}
	if q.Featured != nil && p.Featured != *q.Featured {
		return false
	}
	return true
}

// Search filters published listings, sorts and paginates them. listings must
// be ordered newest first; extra, when non-nil, is applied after the
// structured filters.
func Search(listings []Property, q PropertyQuery, extra func(Property) (bool, error)) (SearchResult, error) {
	perPage := q.PerPage
	if perPage <= 0 {
		perPage = DefaultLimit
	}
	page := max(q.Page, 1)

	var (
		published []Property
		matched   []Property
		ratingSum float64
	)
	for _, p := range listings {
		if !p.Published() {
			continue
		}
		published = append(published, p)
		ratingSum += p.Rating
		if !q.Matches(p) {
			continue
		}
		if extra != nil {
			ok, err := extra(p)
			if err != nil {
				return SearchResult{}, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, p)
	}
	SortProperties(matched, q.Sort)

	res := SearchResult{
		Total:     len(matched),
		Page:      page,
		PerPage:   perPage,
		Pages:     max(1, int(math.Ceil(float64(len(matched))/float64(perPage)))),
		Locations: distinctLocations(published),
		Items:     []Property{},
	}
	if len(published) > 0 {
		res.AverageRating = math.Round(ratingSum/float64(len(published))*10) / 10
	}
	for _, p := range matched {
		if p.Featured {
			res.Featured++
		}
	}
	start := (page - 1) * perPage
	if start < len(matched) {
		end := min(start+perPage, len(matched))
		res.Items = append(res.Items, matched[start:end]...)
	}
	return res, nil
}

// SortProperties orders listings in place. The sort is stable so listings
// that compare equal keep their incoming (newest first) order.
func SortProperties(listings []Property, key SortKey) {
	var less func(a, b Property) bool
	switch key {
	case SortPriceAsc:
		less = func(a, b Property) bool { return a.Price < b.Price }
	case SortRating:
		less = func(a, b Property) bool { return a.Rating > b.Rating }
	case SortArea:
		less = func(a, b Property) bool { return a.Area > b.Area }
	case SortNewest:
		less = func(a, b Property) bool { return a.CreatedAt.After(b.CreatedAt) }
	default:
		less = func(a, b Property) bool { return a.Price > b.Price }
	}
	sort.SliceStable(listings, func(i, j int) bool { return less(listings[i], listings[j]) })
}

func distinctLocations(listings []Property) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range listings {
		if p.Location == "" {
			continue
		}
		if _, ok := seen[p.Location]; ok {
			continue
		}
		seen[p.Location] = struct{}{}
		out = append(out, p.Location)
	}
	sort.Strings(out)
	return out
}

// DashboardFilter captures the admin dashboard filters.
type DashboardFilter struct {
	Search    string
	Type      PropertyType
	Operation Operation
	Status    PropertyStatus
	Featured  *bool
}

// ParseDashboardFilter reads dashboard filters from URL query parameters.
func ParseDashboardFilter(values url.Values) (DashboardFilter, error) {
	f := DashboardFilter{Search: strings.TrimSpace(values.Get("search"))}
	var err error
	if f.Type, err = parseEnum("type", values.Get("type"), domain.PropertyTypes); err != nil {
		return DashboardFilter{}, err
	}
	if f.Operation, err = parseEnum("operation", values.Get("operation"), domain.Operations); err != nil {
		return DashboardFilter{}, err
	}
	statuses := []PropertyStatus{domain.StatusPublished, domain.StatusUnpublished}
	if f.Status, err = parseEnum("status", values.Get("status"), statuses); err != nil {
		return DashboardFilter{}, err
	}
	if f.Featured, err = parseFeatured(values.Get("featured")); err != nil {
		return DashboardFilter{}, err
	}
	return f, nil
}

// Matches reports whether p satisfies the dashboard filter. Search matches the
// title, location or address case-insensitively.
func (f DashboardFilter) Matches(p Property) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		hay := strings.ToLower(p.Title + "\n" + p.Location + "\n" + p.Address)
		if !strings.Contains(hay, needle) {
			return false
		}
	}
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if f.Operation != "" && p.Operation != f.Operation {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Featured != nil && p.Featured != *f.Featured {
		return false
	}
	return true
}

func sentinel(raw, all string) string {
	raw = strings.TrimSpace(raw)
	if raw == all {
		return ""
	}
	return raw
}

func parseEnum[T ~string](param, raw string, allowed []T) (T, error) {
	var zero T
	raw = sentinel(raw, AnyLocation)
	if raw == "" {
		return zero, nil
	}
	if !slices.Contains(allowed, T(raw)) {
		return zero, &QueryError{Param: param, Value: raw, Reason: "unknown value"}
	}
	return T(raw), nil
}

func parseCount(param, raw string) (*int, error) {
	raw = sentinel(raw, AnyCount)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, &QueryError{Param: param, Value: raw, Reason: "must be a non-negative integer"}
	}
	return &n, nil
}

func parsePrice(param, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, &QueryError{Param: param, Value: raw, Reason: "must be a non-negative number"}
	}
	return &n, nil
}

func parseFeatured(raw string) (*bool, error) {
	raw = sentinel(raw, AnyLocation)
	switch raw {
	case "":
		return nil, nil
	case "true", FeaturedYes:
		v := true
		return &v, nil
	case "false", FeaturedNo:
		v := false
		return &v, nil
	default:
		return nil, &QueryError{Param: "featured", Value: raw, Reason: "expected true or false"}
	}
}
