package store

import (
	"context"
	"fmt"

	"github.com/mattjoyce/runwatch/internal/model"
)

const componentColumns = "id, project_id, type, key, name, tool, created_on"

func scanComponent(row rowScanner) (*model.Component, error) {
	var (
		c       model.Component
		typ     string
		created string
	)
	if err := row.Scan(&c.ID, &c.ProjectID, &typ, &c.Key, &c.Name, &c.Tool, &created); err != nil {
		return nil, handleNotFound(err)
	}
	c.Type = model.ComponentType(typ)
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	c.CreatedOn = t
	return &c, nil
}

// GetComponent loads a component by id.
func (s *Store) GetComponent(ctx context.Context, id string) (*model.Component, error) {
	c, err := scanComponent(s.queryRow(ctx,
		"SELECT "+componentColumns+" FROM component WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get component %q: %w", id, err)
	}
	return c, nil
}

// GetComponentByKey loads a component by its natural key.
func (s *Store) GetComponentByKey(ctx context.Context, projectID string, typ model.ComponentType, key string) (*model.Component, error) {
	c, err := scanComponent(s.queryRow(ctx,
		"SELECT "+componentColumns+" FROM component WHERE project_id = ? AND type = ? AND key = ?",
		projectID, string(typ), key))
	if err != nil {
		return nil, fmt.Errorf("get component %s/%s: %w", typ, key, err)
	}
	return c, nil
}

// CreateComponent inserts c, assigning an id and creation time when unset.
func (s *Store) CreateComponent(ctx context.Context, c *model.Component) error {
	s.ensureID(&c.ID)
	if c.CreatedOn.IsZero() {
		c.CreatedOn = s.stamp()
	}
	_, err := s.exec(ctx, `
INSERT INTO component(id, project_id, type, key, name, tool, created_on)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, string(c.Type), c.Key, c.Name, c.Tool, formatTime(c.CreatedOn))
	if err != nil {
		return fmt.Errorf("insert component: %w", err)
	}
	return nil
}

// UpdateComponent persists the mutable descriptive fields of c.
func (s *Store) UpdateComponent(ctx context.Context, c *model.Component) error {
	_, err := s.exec(ctx, "UPDATE component SET name = ?, tool = ? WHERE id = ?", c.Name, c.Tool, c.ID)
	if err != nil {
		return fmt.Errorf("update component %q: %w", c.ID, err)
	}
	return nil
}

// GetComponents loads several components, silently skipping unknown ids.
func (s *Store) GetComponents(ctx context.Context, ids []string) ([]*model.Component, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.query(ctx,
		"SELECT "+componentColumns+" FROM component WHERE id IN ("+placeholders(len(ids))+") ORDER BY key",
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	defer rows.Close()

	var out []*model.Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
