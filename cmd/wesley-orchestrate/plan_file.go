package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	orchestrator "github.com/flyingrobots/wesley-sub010"
	"github.com/flyingrobots/wesley-sub010/graph"
)

// planFile is the JSON shape of a task plan. Durations are milliseconds.
type planFile struct {
	Tasks []planTask `json:"tasks"`
}

type planTask struct {
	ID                      string         `json:"id"`
	Name                    string         `json:"name"`
	Type                    string         `json:"type"`
	Dependencies            []string       `json:"dependencies"`
	Resources               []string       `json:"resources"`
	Priority                int            `json:"priority"`
	EstimatedDurationMS     int64          `json:"estimated_duration_ms"`
	MaxRetries              int            `json:"max_retries"`
	TimeoutMS               int64          `json:"timeout_ms"`
	RequiresExclusiveAccess bool           `json:"requires_exclusive_access"`
	CanRunConcurrently      bool           `json:"can_run_concurrently"`
	Tags                    []string       `json:"tags"`
	Metadata                map[string]any `json:"metadata"`
}

// loadPlan reads a plan file and builds the task graph.
func loadPlan(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var plan planFile
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	if len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("plan file %s contains no tasks", path)
	}

	g := graph.New()
	for _, pt := range plan.Tasks {
		task := orchestrator.Task{
			ID:                      pt.ID,
			Name:                    pt.Name,
			Type:                    orchestrator.TaskType(pt.Type),
			Dependencies:            pt.Dependencies,
			Resources:               pt.Resources,
			Priority:                pt.Priority,
			EstimatedDuration:       time.Duration(pt.EstimatedDurationMS) * time.Millisecond,
			MaxRetries:              pt.MaxRetries,
			Timeout:                 time.Duration(pt.TimeoutMS) * time.Millisecond,
			RequiresExclusiveAccess: pt.RequiresExclusiveAccess,
			CanRunConcurrently:      pt.CanRunConcurrently,
			Tags:                    pt.Tags,
			Metadata:                pt.Metadata,
		}
		if err := g.AddTask(task); err != nil {
			return nil, fmt.Errorf("task %q: %w", pt.ID, err)
		}
	}

	if unresolved := g.Validate(); len(unresolved) > 0 {
		return nil, fmt.Errorf("plan references unknown tasks: %v", unresolved)
	}

	return g, nil
}
