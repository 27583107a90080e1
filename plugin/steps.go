package plugin

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/drone/drone-testopia/testopia"
)

// Step is a single configured build action. The extra environment is merged
// over the process environment for the duration of the run.
type Step interface {
	Run(ctx context.Context, env map[string]string) error
}

// CommandStep runs one command line inside the workspace.
type CommandStep struct {
	Command string
	Dir     string
}

// Run implements Step.
func (s CommandStep) Run(ctx context.Context, env map[string]string) error {
	argv, err := shellquote.Split(s.Command)
	if err != nil {
		return errors.New("invalid build step command: " + err.Error())
	}
	if len(argv) == 0 {
		return errors.New("empty build step command")
	}
	logrus.Infof("Running build step: %s", s.Command)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.Dir
	cmd.Env = mergeEnv(os.Environ(), env)
	out := logrus.StandardLogger().Writer()
	defer out.Close()
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd.Run()
}

// mergeEnv appends the extra variables to the base environment in sorted key
// order, so later entries override earlier ones.
func mergeEnv(base []string, extra map[string]string) []string {
	env := append([]string(nil), base...)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// StepGroups holds the four ordered build-step groups of one build.
type StepGroups struct {
	Single          []Step
	BeforeIteration []Step
	Iterative       []Step
	AfterIteration  []Step
}

// stepsFile is the YAML shape of an external steps definition.
type stepsFile struct {
	Single          []string `yaml:"single"`
	BeforeIteration []string `yaml:"before_iteration"`
	Iterative       []string `yaml:"iterative"`
	AfterIteration  []string `yaml:"after_iteration"`
}

// loadStepGroups builds the step groups from the steps file when configured,
// from the inline newline-separated command lists otherwise.
func loadStepGroups(args Args) (StepGroups, error) {
	workspace := args.Workspace
	if workspace == "" {
		workspace = "."
	}
	if args.StepsFile != "" {
		data, err := os.ReadFile(args.StepsFile)
		if err != nil {
			return StepGroups{}, errors.New("failed to read steps file: " + err.Error())
		}
		var f stepsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return StepGroups{}, errors.New("failed to parse steps file: " + err.Error())
		}
		return StepGroups{
			Single:          commandSteps(f.Single, workspace),
			BeforeIteration: commandSteps(f.BeforeIteration, workspace),
			Iterative:       commandSteps(f.Iterative, workspace),
			AfterIteration:  commandSteps(f.AfterIteration, workspace),
		}, nil
	}
	return StepGroups{
		Single:          commandSteps(splitCommands(args.SingleSteps), workspace),
		BeforeIteration: commandSteps(splitCommands(args.BeforeIterationSteps), workspace),
		Iterative:       commandSteps(splitCommands(args.IterativeSteps), workspace),
		AfterIteration:  commandSteps(splitCommands(args.AfterIterationSteps), workspace),
	}, nil
}

// splitCommands splits a newline-separated command list, dropping blank lines.
func splitCommands(value string) []string {
	var commands []string
	for _, line := range strings.Split(value, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		commands = append(commands, line)
	}
	return commands
}

func commandSteps(commands []string, dir string) []Step {
	steps := make([]Step, 0, len(commands))
	for _, command := range commands {
		steps = append(steps, CommandStep{Command: command, Dir: dir})
	}
	return steps
}

// testCaseEnv maps one test case's fields to the environment variables made
// visible to the per-test-case build steps.
func testCaseEnv(runID int, tc *testopia.TestCase) map[string]string {
	return map[string]string{
		"TESTOPIA_TESTRUN_ID":           strconv.Itoa(runID),
		"TESTOPIA_TESTCASE_ID":          strconv.Itoa(tc.ID),
		"TESTOPIA_TESTCASE_SUMMARY":     tc.Summary,
		"TESTOPIA_TESTCASE_ALIAS":       tc.Alias,
		"TESTOPIA_TESTCASE_SCRIPT":      tc.Script,
		"TESTOPIA_TESTCASE_ARGUMENTS":   tc.Arguments,
		"TESTOPIA_TESTCASE_AUTOMATED":   strconv.Itoa(tc.Automated),
		"TESTOPIA_TESTCASE_CATEGORY_ID": strconv.Itoa(tc.CategoryID),
		"TESTOPIA_TESTCASE_PRIORITY_ID": strconv.Itoa(tc.PriorityID),
		"TESTOPIA_TESTCASE_STATUS_ID":   strconv.Itoa(tc.StatusID),
	}
}
