package e2e

import (
	"context"
	"flag"
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"

	"credregistry/e2e/steps/common"
	"credregistry/e2e/steps/registry"
	"credregistry/e2e/steps/verification"
)

// Run a subset with: go test ./e2e -godog.tags=@revocation
var opts = godog.Options{
	Output:    colors.Colored(os.Stdout),
	Format:    "pretty",
	Paths:     []string{"features"},
	Strict:    true,
	Randomize: -1,
	Tags:      "~@wip",
}

func init() {
	godog.BindCommandLineFlags("godog.", &opts)
}

func TestFeatures(t *testing.T) {
	flag.Parse()
	opts.TestingT = t

	status := godog.TestSuite{
		Name:                "credregistry",
		ScenarioInitializer: initializeScenario,
		Options:             &opts,
	}.Run()
	if status != 0 {
		t.Fatalf("feature run exited with status %d", status)
	}
}

// initializeScenario wires a fresh server, oracle and signing key per scenario.
func initializeScenario(sc *godog.ScenarioContext) {
	tc := NewTestContext()

	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if err != nil {
			tc.logFailure(s.Name)
		}
		tc.Close()
		return ctx, nil
	})

	common.RegisterSteps(sc, tc)
	registry.RegisterSteps(sc, tc)
	verification.RegisterSteps(sc, tc)
}
