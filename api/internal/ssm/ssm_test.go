package ssm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"imageverify/api/internal/scenario"
	"imageverify/api/internal/ssm"
)

func TestState_CanUpload(t *testing.T) {
	assert.True(t, ssm.State{Stage: ssm.StageAwaitingUpload}.CanUpload())
	assert.False(t, ssm.State{Stage: ssm.StageIdle}.CanUpload())
}

func TestState_CanPickScenario(t *testing.T) {
	assert.True(t, ssm.State{Stage: ssm.StageAwaitingScenario}.CanPickScenario())
	assert.False(t, ssm.State{Stage: ssm.StageProcessing}.CanPickScenario())
}

func TestState_CanConfirmReady(t *testing.T) {
	assert.True(t, ssm.State{Stage: ssm.StageTeenagerStopShown}.CanConfirmReady())
	assert.False(t, ssm.State{Stage: ssm.StageAwaitingUpload}.CanConfirmReady())
}

func TestState_ZeroValueScenarioIsEmpty(t *testing.T) {
	var st ssm.State
	assert.Equal(t, scenario.Scenario(""), st.Scenario)
}
