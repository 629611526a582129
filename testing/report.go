package testing

import (
	"encoding/json"
	"os"
	"time"
)

// Report is the JSON-serializable form of a Suite run.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Results   []Result  `json:"results"`
}

// GenerateReport writes the suite's results as indented JSON to path.
func (s *Suite) GenerateReport(path string) error {
	report := Report{
		Timestamp: time.Now(),
		Summary:   s.GetSummary(),
		Results:   s.Results,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
