package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"imageverify/api/internal/model"
	"imageverify/api/internal/queue"
	"imageverify/api/internal/scenario"
)

// Enqueue's scenario validation is pure and doesn't require a live Redis
// connection, unlike the rest of the package.
func TestEnqueue_RejectsInvalidScenario(t *testing.T) {
	q := queue.New(nil, 5*time.Minute)
	err := q.Enqueue(nil, model.Job{ //nolint:staticcheck // nil ctx never reached before the validation error
		JobID:    "j1",
		Scenario: scenario.Scenario("not_a_real_scenario"),
	})
	assert.Error(t, err)
}
