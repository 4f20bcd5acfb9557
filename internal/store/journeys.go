package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/mattjoyce/runwatch/internal/model"
)

// CreateJourney inserts j.
func (s *Store) CreateJourney(ctx context.Context, j *model.Journey) error {
	s.ensureID(&j.ID)
	_, err := s.exec(ctx, "INSERT INTO journey(id, project_id, name) VALUES(?, ?, ?)",
		j.ID, j.ProjectID, j.Name)
	if err != nil {
		return fmt.Errorf("insert journey: %w", err)
	}
	return nil
}

// CreateJourneyEdge inserts one DAG edge.
func (s *Store) CreateJourneyEdge(ctx context.Context, e *model.JourneyEdge) error {
	s.ensureID(&e.ID)
	_, err := s.exec(ctx,
		"INSERT INTO journey_dag_edge(id, journey_id, left_id, right_id) VALUES(?, ?, ?, ?)",
		e.ID, e.JourneyID, nullString(e.LeftID), e.RightID)
	if err != nil {
		return fmt.Errorf("insert journey edge: %w", err)
	}
	return nil
}

// JourneysForComponent lists the journeys whose DAG contains componentID.
func (s *Store) JourneysForComponent(ctx context.Context, componentID string) ([]*model.Journey, error) {
	rows, err := s.query(ctx, `
SELECT j.id, j.project_id, j.name FROM journey j
WHERE j.id IN (
  SELECT e.journey_id FROM journey_dag_edge e WHERE e.left_id = ? OR e.right_id = ?
)
ORDER BY j.id`, componentID, componentID)
	if err != nil {
		return nil, fmt.Errorf("list journeys for component: %w", err)
	}
	defer rows.Close()

	var out []*model.Journey
	for rows.Next() {
		var j model.Journey
		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Name); err != nil {
			return nil, err
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

// JourneyEdges lists the DAG edges of a journey.
func (s *Store) JourneyEdges(ctx context.Context, journeyID string) ([]*model.JourneyEdge, error) {
	rows, err := s.query(ctx,
		"SELECT id, journey_id, left_id, right_id FROM journey_dag_edge WHERE journey_id = ? ORDER BY id",
		journeyID)
	if err != nil {
		return nil, fmt.Errorf("list journey edges: %w", err)
	}
	defer rows.Close()

	var out []*model.JourneyEdge
	for rows.Next() {
		var (
			e    model.JourneyEdge
			left sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.JourneyID, &left, &e.RightID); err != nil {
			return nil, err
		}
		e.LeftID = fromNullString(left)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// JourneyPipelines lists the ids of every batch pipeline in the journey DAG.
func (s *Store) JourneyPipelines(ctx context.Context, journeyID string) ([]string, error) {
	rows, err := s.query(ctx, `
SELECT c.id FROM component c
WHERE c.type = ? AND c.id IN (
  SELECT e.left_id FROM journey_dag_edge e WHERE e.journey_id = ? AND e.left_id IS NOT NULL
  UNION
  SELECT e.right_id FROM journey_dag_edge e WHERE e.journey_id = ?
)
ORDER BY c.id`, string(model.ComponentBatchPipeline), journeyID, journeyID)
	if err != nil {
		return nil, fmt.Errorf("list journey pipelines: %w", err)
	}
	ids, err := collectStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan journey pipelines: %w", err)
	}
	return ids, nil
}

// UpstreamComponents returns every transitive ancestor of componentID in the
// journey DAG, nearest first.
func (s *Store) UpstreamComponents(ctx context.Context, journeyID, componentID string) ([]string, error) {
	edges, err := s.JourneyEdges(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	parents := map[string][]string{}
	for _, e := range edges {
		if e.LeftID != nil {
			parents[e.RightID] = append(parents[e.RightID], *e.LeftID)
		}
	}

	var out []string
	seen := map[string]bool{componentID: true}
	queue := []string{componentID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next := slices.Clone(parents[cur])
		slices.Sort(next)
		for _, p := range next {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
			queue = append(queue, p)
		}
	}
	return out, nil
}

// CreateInstanceRule inserts r.
func (s *Store) CreateInstanceRule(ctx context.Context, r *model.InstanceRule) error {
	s.ensureID(&r.ID)
	_, err := s.exec(ctx, `
INSERT INTO instance_rule(id, journey_id, action, batch_pipeline_id, expression, timezone)
VALUES(?, ?, ?, ?, ?, ?)`,
		r.ID, r.JourneyID, string(r.Action), nullString(r.BatchPipelineID),
		nullString(r.Expression), nullString(r.Timezone))
	if err != nil {
		return fmt.Errorf("insert instance rule: %w", err)
	}
	return nil
}

// InstanceRules lists the rules of the given journeys.
func (s *Store) InstanceRules(ctx context.Context, journeyIDs []string) ([]*model.InstanceRule, error) {
	if len(journeyIDs) == 0 {
		return nil, nil
	}
	rows, err := s.query(ctx, `
SELECT id, journey_id, action, batch_pipeline_id, expression, timezone
FROM instance_rule WHERE journey_id IN (`+placeholders(len(journeyIDs))+`)
ORDER BY journey_id, id`, stringArgs(journeyIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list instance rules: %w", err)
	}
	defer rows.Close()

	var out []*model.InstanceRule
	for rows.Next() {
		var (
			r                     model.InstanceRule
			action                string
			pipeline, expr, tzone sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.JourneyID, &action, &pipeline, &expr, &tzone); err != nil {
			return nil, err
		}
		r.Action = model.RuleAction(action)
		r.BatchPipelineID = fromNullString(pipeline)
		r.Expression = fromNullString(expr)
		r.Timezone = fromNullString(tzone)
		out = append(out, &r)
	}
	return out, rows.Err()
}
