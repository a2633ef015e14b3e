package core

import (
	"fmt"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultExpressionCacheSize = 256

// ListingEnv is the environment advanced search expressions run against.
type ListingEnv struct {
	Title       string   `expr:"title"`
	Location    string   `expr:"location"`
	Type        string   `expr:"type"`
	Operation   string   `expr:"operation"`
	Price       float64  `expr:"price"`
	Bedrooms    int      `expr:"bedrooms"`
	Bathrooms   int      `expr:"bathrooms"`
	Area        float64  `expr:"area"`
	Rating      float64  `expr:"rating"`
	Featured    bool     `expr:"featured"`
	Garage      bool     `expr:"garage"`
	Furnished   bool     `expr:"furnished"`
	PetsAllowed bool     `expr:"pets_allowed"`
	Year        int      `expr:"year"`
	Features    []string `expr:"features"`
}

func listingEnv(p Property) ListingEnv {
	return ListingEnv{
		Title:       p.Title,
		Location:    p.Location,
		Type:        string(p.Type),
		Operation:   string(p.Operation),
		Price:       p.Price,
		Bedrooms:    p.Bedrooms,
		Bathrooms:   p.Bathrooms,
		Area:        p.Area,
		Rating:      p.Rating,
		Featured:    p.Featured,
		Garage:      p.Garage,
		Furnished:   p.Furnished,
		PetsAllowed: p.PetsAllowed,
		Year:        p.Year,
		Features:    p.Features,
	}
}

// ExpressionCache compiles boolean listing expressions once and keeps the
// most recently used programs.
type ExpressionCache struct {
	mu       sync.Mutex
	programs *lru.Cache[string, *exprvm.Program]
}

// NewExpressionCache returns a cache holding up to size programs.
func NewExpressionCache(size int) *ExpressionCache {
	if size <= 0 {
		size = defaultExpressionCacheSize
	}
	programs, _ := lru.New[string, *exprvm.Program](size)
	return &ExpressionCache{programs: programs}
}

// Compile returns the program for expression, compiling it on a cache miss.
// Invalid expressions are reported as *QueryError.
func (c *ExpressionCache) Compile(expression string) (*exprvm.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if program, ok := c.programs.Get(expression); ok {
		return program, nil
	}
	program, err := exprlang.Compile(expression, exprlang.Env(ListingEnv{}), exprlang.AsBool())
	if err != nil {
		return nil, &QueryError{Param: "expr", Value: expression, Reason: err.Error()}
	}
	c.programs.Add(expression, program)
	return program, nil
}

// Len reports the number of cached programs.
func (c *ExpressionCache) Len() int { return c.programs.Len() }

// Predicate compiles expression into a listing filter.
func (c *ExpressionCache) Predicate(expression string) (func(Property) (bool, error), error) {
	program, err := c.Compile(expression)
	if err != nil {
		return nil, err
	}
	return func(p Property) (bool, error) {
		out, err := exprlang.Run(program, listingEnv(p))
		if err != nil {
			return false, &QueryError{Param: "expr", Value: expression, Reason: err.Error()}
		}
		matched, ok := out.(bool)
		if !ok {
			return false, &QueryError{Param: "expr", Value: expression, Reason: fmt.Sprintf("expected boolean result, got %T", out)}
		}
		return matched, nil
	}, nil
}
