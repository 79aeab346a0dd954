package bridge

import (
	"context"
	"fmt"

	orchestrator "github.com/flyingrobots/wesley-sub010"
)

// handleSQL runs a single SQL operation described by the task's metadata
// ("sql", optionally "params", "transaction" and "operation_id") through the
// executor.
func (b *Bridge) handleSQL(ctx context.Context, task orchestrator.Task) (map[string]any, error) {
	sql, ok := task.Metadata["sql"].(string)
	if !ok || sql == "" {
		return nil, fmt.Errorf("task %s: sql task requires string metadata key %q", task.ID, "sql")
	}

	op := orchestrator.Operation{
		ID:          metaString(task.Metadata, "operation_id", task.ID),
		SQL:         sql,
		Params:      metaParams(task.Metadata, "params"),
		Transaction: metaBool(task.Metadata, "transaction"),
	}

	res, err := b.config.Executor.Execute(ctx, op)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"operationID":  res.OperationID,
		"rowsAffected": res.RowsAffected,
		"lockLevel":    string(res.Level),
		"resourceKey":  res.ResourceKey,
		"queueWait":    res.QueueWait,
	}, nil
}

// handleMigration runs the task's "operations" list sequentially through the
// executor, stopping at the first failure.
func (b *Bridge) handleMigration(ctx context.Context, task orchestrator.Task) (map[string]any, error) {
	ops, err := decodeOperations(task.Metadata["operations"])
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task.ID, err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("task %s: migration task requires metadata key %q", task.ID, "operations")
	}

	var rowsAffected int64
	for i, op := range ops {
		if op.ID == "" {
			op.ID = fmt.Sprintf("%s-op-%d", task.ID, i+1)
		}
		res, err := b.config.Executor.Execute(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("migration operation %d/%d: %w", i+1, len(ops), err)
		}
		rowsAffected += res.RowsAffected
	}

	return map[string]any{
		"operations":   len(ops),
		"rowsAffected": rowsAffected,
	}, nil
}

// handleGeneration records expected artifact counts. Actual code generation
// is performed by an external collaborator; this handler only settles the
// graph node so dependents can proceed.
func (b *Bridge) handleGeneration(_ context.Context, task orchestrator.Task) (map[string]any, error) {
	return map[string]any{
		"expectedArtifacts": metaInt(task.Metadata, "expected_artifacts"),
		"generated":         false,
	}, nil
}

// handleValidation runs schema/migration sanity checks. Checks are currently
// declared via metadata: a "valid" key of false fails the task.
func (b *Bridge) handleValidation(_ context.Context, task orchestrator.Task) (map[string]any, error) {
	if v, ok := task.Metadata["valid"].(bool); ok && !v {
		return nil, fmt.Errorf("task %s: validation failed", task.ID)
	}

	checks := 0
	if raw, ok := task.Metadata["checks"]; ok {
		switch c := raw.(type) {
		case []string:
			checks = len(c)
		case []any:
			checks = len(c)
		}
	}
	return map[string]any{
		"checks": checks,
		"valid":  true,
	}, nil
}

// decodeOperations accepts either typed operations or the generic shapes a
// JSON plan file decodes into.
func decodeOperations(raw any) ([]orchestrator.Operation, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []orchestrator.Operation:
		return v, nil
	case []any:
		ops := make([]orchestrator.Operation, 0, len(v))
		for i, entry := range v {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("operation %d: expected object, got %T", i+1, entry)
			}
			sql, ok := m["sql"].(string)
			if !ok || sql == "" {
				return nil, fmt.Errorf("operation %d: missing sql", i+1)
			}
			ops = append(ops, orchestrator.Operation{
				ID:          metaString(m, "id", ""),
				SQL:         sql,
				Params:      metaParams(m, "params"),
				Transaction: metaBool(m, "transaction"),
			})
		}
		return ops, nil
	default:
		return nil, fmt.Errorf("unsupported operations shape %T", raw)
	}
}

func metaString(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func metaBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func metaParams(m map[string]any, key string) []any {
	p, _ := m[key].([]any)
	return p
}
