package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithRetry_IncrementsRetryCount(t *testing.T) {
	task := Task{ID: "t1", MaxRetries: 3}

	first := task.WithRetry()
	second := first.WithRetry()

	assert.Equal(t, 0, task.RetryCount, "original is never mutated")
	assert.Equal(t, 1, first.RetryCount)
	assert.Equal(t, 2, second.RetryCount)
}

func TestWithRetry_CopiesSlicesAndMetadata(t *testing.T) {
	task := Task{
		ID:           "t1",
		Dependencies: []string{"a"},
		Resources:    []string{"users"},
		Tags:         []string{"ddl"},
		Metadata:     map[string]any{"sql": "SELECT 1"},
	}

	retry := task.WithRetry()
	retry.Dependencies[0] = "changed"
	retry.Resources[0] = "changed"
	retry.Tags[0] = "changed"
	retry.Metadata["sql"] = "changed"

	assert.Equal(t, []string{"a"}, task.Dependencies)
	assert.Equal(t, []string{"users"}, task.Resources)
	assert.Equal(t, []string{"ddl"}, task.Tags)
	assert.Equal(t, "SELECT 1", task.Metadata["sql"])
}

func TestWithRetry_NilCollectionsStayNil(t *testing.T) {
	task := Task{ID: "t1"}

	retry := task.WithRetry()

	assert.Nil(t, retry.Dependencies)
	assert.Nil(t, retry.Metadata)
}
