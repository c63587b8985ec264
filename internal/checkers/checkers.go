// Package checkers provides quicktest checkers shared by the test suites.
package checkers

import (
	"encoding/json"
	"fmt"
	"reflect"

	qt "github.com/frankban/quicktest"
	"github.com/yalp/jsonpath"
)

// JSONPathEquals returns a checker that unmarshals the got value (a JSON
// string) and asserts that the value at path equals want. Numbers are
// compared as float64, per encoding/json.
//
//	c.Assert(text, checkers.JSONPathEquals("$.status"), "stored")
func JSONPathEquals(path string) qt.Checker {
	return &jsonPathChecker{path: path}
}

type jsonPathChecker struct {
	path string
}

// ArgNames implements qt.Checker.
func (*jsonPathChecker) ArgNames() []string { return []string{"got JSON", "want"} }

// Check implements qt.Checker.
func (c *jsonPathChecker) Check(got any, args []any, note func(key string, value any)) error {
	raw, ok := got.(string)
	if !ok {
		return fmt.Errorf("got value is %T, want a JSON string", got)
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		note("raw", raw)
		return fmt.Errorf("got value is not valid JSON: %v", err)
	}
	found, err := jsonpath.Read(doc, c.path)
	if err != nil {
		note("document", doc)
		return fmt.Errorf("jsonpath %q: %v", c.path, err)
	}
	if !reflect.DeepEqual(found, args[0]) {
		note("jsonpath", c.path)
		note("found", found)
		return fmt.Errorf("values are not equal")
	}
	return nil
}
