package testing

import (
	"crypto/rand"
	"testing"
)

func TestSuiteRunAllPasses(t *testing.T) {
	s := NewSuite(rand.Reader)
	s.RunAll()

	summary := s.GetSummary()
	if summary.Total == 0 {
		t.Fatal("expected at least one result")
	}
	if summary.Failed != 0 {
		for _, r := range s.Results {
			if !r.Passed {
				t.Errorf("%s/%s failed: %s", r.Category, r.Name, r.Error)
			}
		}
	}
	if summary.ByCategory["property"] != 8 {
		t.Fatalf("expected 8 property results, got %d", summary.ByCategory["property"])
	}
	if summary.ByCategory["scenario"] != 7 {
		t.Fatalf("expected 7 scenario results, got %d", summary.ByCategory["scenario"])
	}
}
