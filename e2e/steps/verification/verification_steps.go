package verification

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/cucumber/godog"
)

// sampleImage stands in for an uploaded credential scan; the fake oracle ignores its content.
var sampleImage = base64.StdEncoding.EncodeToString([]byte("scanned-credential-image"))

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	SetOracleConfidence(confidence float64)
	StallOracle()
}

// RegisterSteps registers verification-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	ctx.Step(`^the similarity oracle answers with confidence (\d+(?:\.\d+)?)$`, steps.oracleAnswers)
	ctx.Step(`^the similarity oracle stalls$`, steps.oracleStalls)
	ctx.Step(`^I verify code "([^"]*)"$`, steps.verifyCode)
	ctx.Step(`^I verify code "([^"]*)" with an image$`, steps.verifyCodeWithImage)
	ctx.Step(`^I verify the codes "([^"]*)" in one batch$`, steps.verifyBatch)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) oracleAnswers(ctx context.Context, confidence float64) error {
	s.tc.SetOracleConfidence(confidence)
	return nil
}

func (s *verificationSteps) oracleStalls(ctx context.Context) error {
	s.tc.StallOracle()
	return nil
}

func (s *verificationSteps) verifyCode(ctx context.Context, code string) error {
	return s.tc.POST("/verify", map[string]any{"verification_code": code})
}

func (s *verificationSteps) verifyCodeWithImage(ctx context.Context, code string) error {
	return s.tc.POST("/verify", map[string]any{
		"verification_code": code,
		"image":             sampleImage,
	})
}

// verifyBatch takes a comma separated list of codes.
func (s *verificationSteps) verifyBatch(ctx context.Context, codes string) error {
	var list []string
	for _, code := range strings.Split(codes, ",") {
		list = append(list, strings.TrimSpace(code))
	}
	return s.tc.POST("/verify/batch", map[string]any{"codes": list})
}
