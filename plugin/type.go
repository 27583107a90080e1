package plugin

import (
	"encoding/xml"

	"github.com/drone/drone-testopia/testopia"
)

// testNGResults represents the root of a TestNG XML report.
type testNGResults struct {
	XMLName xml.Name `xml:"testng-results"`
	Suites  []Suite  `xml:"suite"`
}

// Suite represents a TestNG suite.
type Suite struct {
	Name       string `xml:"name,attr"`
	DurationMS string `xml:"duration-ms,attr"`
	Tests      []Test `xml:"test"`
}

// Test represents a TestNG test inside a suite.
type Test struct {
	Name    string  `xml:"name,attr"`
	Classes []Class `xml:"class"`
}

// Class represents a TestNG class.
type Class struct {
	Name    string       `xml:"name,attr"`
	Methods []TestMethod `xml:"test-method"`
}

// TestMethod represents a test or configuration method.
type TestMethod struct {
	Name        string `xml:"name,attr"`
	Status      string `xml:"status,attr"`
	DurationMS  string `xml:"duration-ms,attr"`
	IsConfig    bool   `xml:"is-config,attr"`
	Description string `xml:"description,attr"`
	Exception   string `xml:"exception>short-stacktrace"`
}

// Report aggregates the per-build outcome counters across every status pushed
// to the remote server. It is created fresh per build.
type Report struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Blocked int `json:"blocked"`
	Idle    int `json:"idle"`
}

func (r *Report) tally(status testopia.Status) {
	r.Total++
	switch status {
	case testopia.StatusPassed:
		r.Passed++
	case testopia.StatusFailed:
		r.Failed++
	case testopia.StatusBlocked:
		r.Blocked++
	case testopia.StatusIdle:
		r.Idle++
	}
}

// BuildResult is the overall build outcome.
type BuildResult int

// Build outcomes, ordered from best to worst.
const (
	ResultSuccess BuildResult = iota
	ResultUnstable
	ResultFailure
)

// String returns the display name of the build result.
func (r BuildResult) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultUnstable:
		return "UNSTABLE"
	case ResultFailure:
		return "FAILURE"
	}
	return "UNKNOWN"
}

// worseOf returns the worse of the two results.
func worseOf(a, b BuildResult) BuildResult {
	if b > a {
		return b
	}
	return a
}
