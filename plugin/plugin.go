package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/drone/drone-testopia/testopia"
)

// Args represents the plugin's configurable arguments.
type Args struct {
	TestopiaURL string `envconfig:"PLUGIN_TESTOPIA_URL"`
	Username    string `envconfig:"PLUGIN_TESTOPIA_USERNAME"`
	Password    string `envconfig:"PLUGIN_TESTOPIA_PASSWORD"`
	Properties  string `envconfig:"PLUGIN_TESTOPIA_PROPERTIES"`
	TestRunID   int    `envconfig:"PLUGIN_TEST_RUN_ID"`

	Workspace            string `envconfig:"PLUGIN_WORKSPACE"`
	IncludePattern       string `envconfig:"PLUGIN_INCLUDE_PATTERN"`
	ResultSeekers        string `envconfig:"PLUGIN_RESULT_SEEKERS"`
	MarkSkippedAsBlocked bool   `envconfig:"PLUGIN_MARK_SKIPPED_AS_BLOCKED"`
	AttachReport         bool   `envconfig:"PLUGIN_ATTACH_TESTNG_XML"`

	FailedTestsMarkBuildAsFailure bool `envconfig:"PLUGIN_FAILED_TESTS_MARK_BUILD_AS_FAILURE"`

	StepsFile            string `envconfig:"PLUGIN_STEPS_FILE"`
	SingleSteps          string `envconfig:"PLUGIN_SINGLE_STEPS"`
	BeforeIterationSteps string `envconfig:"PLUGIN_BEFORE_ITERATION_STEPS"`
	IterativeSteps       string `envconfig:"PLUGIN_ITERATIVE_STEPS"`
	AfterIterationSteps  string `envconfig:"PLUGIN_AFTER_ITERATION_STEPS"`

	ReportFile string `envconfig:"PLUGIN_REPORT_FILE"`
	Level      string `envconfig:"PLUGIN_LOG_LEVEL"`
}

// ValidateInputs ensures the user inputs meet the plugin requirements.
func ValidateInputs(args Args) error {
	if args.TestopiaURL == "" {
		return errors.New("missing required parameter: TestopiaURL. Please specify the Testopia XML-RPC endpoint URL")
	}
	if args.Username == "" || args.Password == "" {
		return errors.New("missing required parameter: Testopia credentials. Please specify both the username and the password")
	}
	if args.TestRunID <= 0 {
		return errors.New("invalid TestRunID value. It must be a positive Testopia test run id")
	}
	if args.IncludePattern == "" {
		return errors.New("missing required parameter: IncludePattern. Please specify the pattern to locate the TestNG report files")
	}
	if args.StepsFile != "" &&
		(args.SingleSteps != "" || args.BeforeIterationSteps != "" ||
			args.IterativeSteps != "" || args.AfterIterationSteps != "") {
		return errors.New("StepsFile and inline step lists are mutually exclusive. Configure one or the other")
	}
	if _, err := seekersFor(args, nil); err != nil {
		return err
	}
	return nil
}

// Exec connects to Testopia, runs the configured build-step groups, seeks test
// results in the workspace and pushes them back to the server. It returns the
// overall build outcome; a non-nil error is fatal and the outcome is FAILURE.
func Exec(ctx context.Context, args Args) (BuildResult, error) {
	groups, err := loadStepGroups(args)
	if err != nil {
		logrus.WithError(err).Error("Invalid build step configuration")
		return ResultFailure, err
	}

	logrus.Info("Connecting to Testopia to retrieve automated test cases")
	client, err := testopia.NewClient(testopia.Config{
		URL:        args.TestopiaURL,
		Username:   args.Username,
		Password:   args.Password,
		Properties: args.Properties,
	})
	if err != nil {
		logrus.WithError(err).Error("Invalid Testopia installation")
		return ResultFailure, err
	}
	defer client.Close()
	if err := client.Login(); err != nil {
		logrus.WithError(err).Error("Error logging in to Testopia")
		return ResultFailure, err
	}

	run, err := client.TestRun(args.TestRunID)
	if err != nil {
		logrus.WithError(err).WithField("TestRun", args.TestRunID).Error("Error retrieving test run")
		return ResultFailure, err
	}
	logrus.Infof("Test run %d: %s", run.ID, run.Summary)

	cases, err := client.TestCases(args.TestRunID)
	if err != nil {
		logrus.WithError(err).WithField("TestRun", args.TestRunID).Error("Error retrieving test cases")
		return ResultFailure, err
	}
	cases = automatedOnly(cases)
	logrus.Infof("Found %d automated test cases", len(cases))
	for _, tc := range cases {
		logrus.WithFields(logrus.Fields{
			"TestCase": tc.ID,
			"Summary":  tc.Summary,
		}).Debug("Automated test case")
	}

	result := ResultSuccess

	logrus.Info("Executing single build steps")
	result = worseOf(result, runSteps(ctx, groups.Single, nil))
	if err := ctx.Err(); err != nil {
		return ResultFailure, err
	}

	logrus.Info("Executing iterative build steps")
	result = worseOf(result, runSteps(ctx, groups.BeforeIteration, nil))
	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			return ResultFailure, err
		}
		env := testCaseEnv(args.TestRunID, tc)
		result = worseOf(result, runSteps(ctx, groups.Iterative, env))
	}
	result = worseOf(result, runSteps(ctx, groups.AfterIteration, nil))
	if err := ctx.Err(); err != nil {
		return ResultFailure, err
	}

	logrus.Info("Seeking test results")
	seekers, err := seekersFor(args, client)
	if err != nil {
		return ResultFailure, err
	}
	site := NewSite(client)
	for _, seeker := range seekers {
		logrus.Infof("Seeking test results using %s", seeker.Name())
		if err := seeker.Seek(cases, site); err != nil {
			logrus.WithError(err).Error("Error seeking test results")
			return ResultFailure, errors.New("error seeking test results: " + err.Error())
		}
	}

	report := site.Report()
	logrus.Infof("Found %d test results", report.Total)
	logrus.Infof("Passed: %d | Failed: %d | Blocked: %d | Idle: %d",
		report.Passed, report.Failed, report.Blocked, report.Idle)
	if args.ReportFile != "" {
		if err := writeReport(args.ReportFile, report); err != nil {
			logrus.WithError(err).Error("Error writing report file")
			return ResultFailure, err
		}
	}

	if report.Failed > 0 {
		if args.FailedTestsMarkBuildAsFailure {
			result = ResultFailure
		} else {
			result = worseOf(result, ResultUnstable)
		}
	}
	logrus.Infof("Build result: %s", result)
	return result, nil
}

// runSteps runs one step group in order. A failing step downgrades the result
// to UNSTABLE; execution continues with the next step.
func runSteps(ctx context.Context, steps []Step, env map[string]string) BuildResult {
	result := ResultSuccess
	for _, step := range steps {
		if err := step.Run(ctx, env); err != nil {
			logrus.WithError(err).Error("Build step failed")
			result = ResultUnstable
		}
	}
	return result
}

// automatedOnly filters the fetched test cases down to the automated ones.
func automatedOnly(cases []*testopia.TestCase) []*testopia.TestCase {
	out := make([]*testopia.TestCase, 0, len(cases))
	for _, tc := range cases {
		if tc == nil || tc.Automated == 0 {
			continue
		}
		out = append(out, tc)
	}
	return out
}

// writeReport writes the aggregated counters as JSON next to the build output.
func writeReport(path string, report Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.New("failed to encode report: " + err.Error())
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("failed to write report file: " + err.Error())
	}
	return nil
}
