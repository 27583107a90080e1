package plugin

import (
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"

	"github.com/drone/drone-testopia/testopia"
)

// TestNG method status values.
const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

// Updater pushes a status change for one test case to the remote server.
// *testopia.Client is the production implementation.
type Updater interface {
	Update(tc *testopia.TestCase) error
}

// Attacher uploads a report file to a remote test case.
type Attacher interface {
	AddAttachment(caseID int, filename, mimeType string, data []byte) error
}

// Site couples the remote updater with the per-build report counters. Every
// successful update increments the counter of the pushed status.
type Site struct {
	updater Updater
	report  Report
}

// NewSite returns a site backed by the given updater.
func NewSite(updater Updater) *Site {
	return &Site{updater: updater}
}

// Update pushes the test case's current status and tallies it.
func (s *Site) Update(tc *testopia.TestCase) error {
	if err := s.updater.Update(tc); err != nil {
		return err
	}
	s.report.tally(testopia.Status(tc.StatusID))
	return nil
}

// Report returns the counters accumulated so far.
func (s *Site) Report() Report {
	return s.report
}

// SeekerError wraps a failure raised while a result-seeking strategy runs.
type SeekerError struct {
	Seeker string
	Err    error
}

func (e *SeekerError) Error() string {
	return "result seeker " + e.Seeker + ": " + e.Err.Error()
}

func (e *SeekerError) Unwrap() error {
	return e.Err
}

// Seeker scans build output and maps parsed results onto remote test cases.
type Seeker interface {
	Name() string
	Seek(cases []*testopia.TestCase, site *Site) error
}

// seekerConfig is the configuration shared by the TestNG seekers.
type seekerConfig struct {
	Workspace            string
	IncludePattern       string
	MarkSkippedAsBlocked bool
	AttachReport         bool
	attacher             Attacher
}

// parsedReport is one scanned report file with its parsed suite.
type parsedReport struct {
	Path  string
	Suite Suite
}

// locateReports returns the workspace-relative paths matching the include
// pattern, sorted. An empty slice means nothing matched.
func locateReports(workspace, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(workspace), pattern, doublestar.WithFailOnIOErrors())
	if err != nil {
		logger := logrus.WithError(err).WithField("Pattern", pattern)
		logger.Error("Error occurred while scanning the workspace for report files")
		return nil, errors.New("failed to scan for report files: " + err.Error())
	}
	sort.Strings(matches)
	return matches, nil
}

// parseReport parses one TestNG XML report file into its suite. Reports with
// several suites keep only the first one.
func parseReport(path string) (Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Suite{}, errors.New("failed to read report file: " + err.Error())
	}
	var doc testNGResults
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Suite{}, errors.New("failed to parse TestNG XML: " + err.Error())
	}
	if len(doc.Suites) == 0 {
		return Suite{}, errors.New("no test suites found in the XML structure")
	}
	if len(doc.Suites) > 1 {
		logrus.WithField("File", path).Warnf("Report contains %d suites, only the first one is used", len(doc.Suites))
	}
	return doc.Suites[0], nil
}

// loadReports scans the workspace and parses every matched report file, in
// scan order.
func (c seekerConfig) loadReports() ([]parsedReport, error) {
	files, err := locateReports(c.Workspace, c.IncludePattern)
	if err != nil {
		return nil, err
	}
	reports := make([]parsedReport, 0, len(files))
	for _, rel := range files {
		path := filepath.Join(c.Workspace, filepath.FromSlash(rel))
		logrus.Infof("Processing report file: %s", path)
		suite, err := parseReport(path)
		if err != nil {
			logger := logrus.WithField("File", path).WithError(err)
			logger.Error("Error processing report file")
			return nil, err
		}
		reports = append(reports, parsedReport{Path: path, Suite: suite})
	}
	return reports, nil
}

// update pushes the resolved status onto the matched test case and optionally
// attaches the report file that produced it.
func (c seekerConfig) update(site *Site, tc *testopia.TestCase, status testopia.Status, reportPath string) error {
	tc.StatusID = int(status)
	if err := site.Update(tc); err != nil {
		return err
	}
	if !c.AttachReport || c.attacher == nil {
		return nil
	}
	data, err := os.ReadFile(reportPath)
	if err != nil {
		return errors.New("failed to read report file for attachment: " + err.Error())
	}
	return c.attacher.AddAttachment(tc.ID, filepath.Base(reportPath), "text/xml", data)
}

// resolveMethods reduces an ordered collection of methods to one status. Any
// failed method dominates regardless of ordering; otherwise any skipped method
// maps to Blocked or Idle depending on the configured flag; otherwise Passed,
// including the empty collection.
func resolveMethods(methods []TestMethod, skippedAsBlocked bool) testopia.Status {
	for _, m := range methods {
		if m.Status == statusFail {
			return testopia.StatusFailed
		}
	}
	for _, m := range methods {
		if m.Status == statusSkip {
			if skippedAsBlocked {
				return testopia.StatusBlocked
			}
			return testopia.StatusIdle
		}
	}
	return testopia.StatusPassed
}

// resolveClassStatus reduces a class's methods to one status.
func resolveClassStatus(class Class, skippedAsBlocked bool) testopia.Status {
	return resolveMethods(class.Methods, skippedAsBlocked)
}

// ClassNameSeeker matches each parsed TestNG class name against the test
// cases' alias field and pushes the class's resolved status to every match.
type ClassNameSeeker struct {
	seekerConfig
}

// Name implements Seeker.
func (s *ClassNameSeeker) Name() string {
	return "testng-class-name"
}

// Seek implements Seeker.
func (s *ClassNameSeeker) Seek(cases []*testopia.TestCase, site *Site) error {
	reports, err := s.loadReports()
	if err != nil {
		return &SeekerError{Seeker: s.Name(), Err: err}
	}
	for _, rep := range reports {
		for _, test := range rep.Suite.Tests {
			for _, class := range test.Classes {
				status := resolveClassStatus(class, s.MarkSkippedAsBlocked)
				for _, tc := range cases {
					if class.Name != tc.Alias {
						continue
					}
					logrus.WithFields(logrus.Fields{
						"Class":    class.Name,
						"TestCase": tc.ID,
						"Status":   status.String(),
					}).Info("Matched TestNG class to test case")
					if err := s.update(site, tc, status, rep.Path); err != nil {
						return &SeekerError{Seeker: s.Name(), Err: err}
					}
				}
			}
		}
	}
	return nil
}

// MethodNameSeeker matches "Class#method" against the test cases' alias field
// and pushes each method's own status to every match.
type MethodNameSeeker struct {
	seekerConfig
}

// Name implements Seeker.
func (s *MethodNameSeeker) Name() string {
	return "testng-method-name"
}

// Seek implements Seeker.
func (s *MethodNameSeeker) Seek(cases []*testopia.TestCase, site *Site) error {
	reports, err := s.loadReports()
	if err != nil {
		return &SeekerError{Seeker: s.Name(), Err: err}
	}
	for _, rep := range reports {
		for _, test := range rep.Suite.Tests {
			for _, class := range test.Classes {
				for _, method := range class.Methods {
					key := class.Name + "#" + method.Name
					status := resolveMethods([]TestMethod{method}, s.MarkSkippedAsBlocked)
					for _, tc := range cases {
						if key != tc.Alias {
							continue
						}
						if err := s.update(site, tc, status, rep.Path); err != nil {
							return &SeekerError{Seeker: s.Name(), Err: err}
						}
					}
				}
			}
		}
	}
	return nil
}

// SuiteNameSeeker matches each parsed suite name against the test cases'
// alias field, resolving the status over every method of the suite.
type SuiteNameSeeker struct {
	seekerConfig
}

// Name implements Seeker.
func (s *SuiteNameSeeker) Name() string {
	return "testng-suite-name"
}

// Seek implements Seeker.
func (s *SuiteNameSeeker) Seek(cases []*testopia.TestCase, site *Site) error {
	reports, err := s.loadReports()
	if err != nil {
		return &SeekerError{Seeker: s.Name(), Err: err}
	}
	for _, rep := range reports {
		var methods []TestMethod
		for _, test := range rep.Suite.Tests {
			for _, class := range test.Classes {
				methods = append(methods, class.Methods...)
			}
		}
		status := resolveMethods(methods, s.MarkSkippedAsBlocked)
		for _, tc := range cases {
			if rep.Suite.Name != tc.Alias {
				continue
			}
			if err := s.update(site, tc, status, rep.Path); err != nil {
				return &SeekerError{Seeker: s.Name(), Err: err}
			}
		}
	}
	return nil
}

// seekersFor builds the configured result-seeking strategies. The default is
// the class-name seeker.
func seekersFor(args Args, attacher Attacher) ([]Seeker, error) {
	cfg := seekerConfig{
		Workspace:            args.Workspace,
		IncludePattern:       args.IncludePattern,
		MarkSkippedAsBlocked: args.MarkSkippedAsBlocked,
		AttachReport:         args.AttachReport,
		attacher:             attacher,
	}
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	names := args.ResultSeekers
	if strings.TrimSpace(names) == "" {
		names = "class-name"
	}
	var seekers []Seeker
	for _, name := range strings.Split(names, ",") {
		switch strings.TrimSpace(name) {
		case "class-name":
			seekers = append(seekers, &ClassNameSeeker{seekerConfig: cfg})
		case "method-name":
			seekers = append(seekers, &MethodNameSeeker{seekerConfig: cfg})
		case "suite-name":
			seekers = append(seekers, &SuiteNameSeeker{seekerConfig: cfg})
		case "":
			continue
		default:
			return nil, errors.New("unknown result seeker: " + strings.TrimSpace(name))
		}
	}
	return seekers, nil
}
