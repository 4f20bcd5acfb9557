package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/runwatch/internal/model"
)

const instanceColumns = "i.id, i.journey_id, i.start_time, i.end_time, i.payload_key, i.start_type"

func scanInstance(row rowScanner) (*model.Instance, error) {
	var (
		in              model.Instance
		start, typ      string
		end, payloadKey sql.NullString
	)
	if err := row.Scan(&in.ID, &in.JourneyID, &start, &end, &payloadKey, &typ); err != nil {
		return nil, handleNotFound(err)
	}
	in.PayloadKey = fromNullString(payloadKey)
	in.StartType = model.InstanceStartType(typ)

	var err error
	if in.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if in.EndTime, err = fromNullTime(end); err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *Store) listInstances(ctx context.Context, query string, args ...any) ([]*model.Instance, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Instance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// GetInstance loads an instance by id.
func (s *Store) GetInstance(ctx context.Context, id string) (*model.Instance, error) {
	in, err := scanInstance(s.queryRow(ctx,
		"SELECT "+instanceColumns+" FROM instance i WHERE i.id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get instance %q: %w", id, err)
	}
	return in, nil
}

// GetInstances loads the given instances ordered by journey then start.
func (s *Store) GetInstances(ctx context.Context, ids []string) ([]*model.Instance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out, err := s.listInstances(ctx,
		"SELECT "+instanceColumns+" FROM instance i WHERE i.id IN ("+placeholders(len(ids))+
			") ORDER BY i.journey_id, i.start_time, i.id",
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return out, nil
}

// CreateInstances bulk-inserts new instances.
func (s *Store) CreateInstances(ctx context.Context, instances []*model.Instance) error {
	if len(instances) == 0 {
		return nil
	}
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("INSERT INTO instance(id, journey_id, start_time, end_time, payload_key, start_type) VALUES ")
	for i, in := range instances {
		s.ensureID(&in.ID)
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?)")
		args = append(args, in.ID, in.JourneyID, formatTime(in.StartTime),
			nullTime(in.EndTime), nullString(in.PayloadKey), string(in.StartType))
	}
	if _, err := s.exec(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert instances: %w", err)
	}
	return nil
}

// EndInstance closes an active instance. It reports false when the instance
// was already closed.
func (s *Store) EndInstance(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.exec(ctx,
		"UPDATE instance SET end_time = ? WHERE id = ? AND end_time IS NULL", formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("end instance %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActiveInstance returns the newest active instance of the journey with the
// given payload key; a nil key selects the default instance.
func (s *Store) ActiveInstance(ctx context.Context, journeyID string, payloadKey *string) (*model.Instance, error) {
	var row *sql.Row
	if payloadKey == nil {
		row = s.queryRow(ctx, `
SELECT `+instanceColumns+` FROM instance i
WHERE i.journey_id = ? AND i.end_time IS NULL AND i.payload_key IS NULL
ORDER BY i.start_time DESC, i.id LIMIT 1`, journeyID)
	} else {
		row = s.queryRow(ctx, `
SELECT `+instanceColumns+` FROM instance i
WHERE i.journey_id = ? AND i.end_time IS NULL AND i.payload_key = ?
ORDER BY i.start_time DESC, i.id LIMIT 1`, journeyID, *payloadKey)
	}
	in, err := scanInstance(row)
	if err != nil {
		return nil, fmt.Errorf("find active instance: %w", err)
	}
	return in, nil
}

// ActiveDefaultInstances lists every open default instance of the journey.
func (s *Store) ActiveDefaultInstances(ctx context.Context, journeyID string) ([]*model.Instance, error) {
	out, err := s.listInstances(ctx, `
SELECT `+instanceColumns+` FROM instance i
WHERE i.journey_id = ? AND i.end_time IS NULL AND i.payload_key IS NULL
ORDER BY i.start_time, i.id`, journeyID)
	if err != nil {
		return nil, fmt.Errorf("list active instances: %w", err)
	}
	return out, nil
}

// RunInstance returns the default instance of journeyID already tied to the
// run through its instance set.
func (s *Store) RunInstance(ctx context.Context, runID, journeyID string) (*model.Instance, error) {
	in, err := scanInstance(s.queryRow(ctx, `
SELECT `+instanceColumns+` FROM instance i
JOIN instance_set_member m ON m.instance_id = i.id
JOIN run r ON r.instance_set_id = m.instance_set_id
WHERE r.id = ? AND i.journey_id = ? AND i.payload_key IS NULL
ORDER BY i.start_time DESC LIMIT 1`, runID, journeyID))
	if err != nil {
		return nil, fmt.Errorf("find run instance: %w", err)
	}
	return in, nil
}

// InstanceSetInstances lists the instances that make up an instance set.
func (s *Store) InstanceSetInstances(ctx context.Context, setID string) ([]*model.Instance, error) {
	out, err := s.listInstances(ctx, `
SELECT `+instanceColumns+` FROM instance i
JOIN instance_set_member m ON m.instance_id = i.id
WHERE m.instance_set_id = ?
ORDER BY i.journey_id, i.start_time, i.id`, setID)
	if err != nil {
		return nil, fmt.Errorf("list instance set members: %w", err)
	}
	return out, nil
}

// InstanceSetDigest is the content address of a set of instance ids: the
// BLAKE3 hash of the sorted, de-duplicated ids.
func InstanceSetDigest(ids []string) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	sum := blake3.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// GetOrCreateInstanceSet returns the instance set holding exactly ids,
// creating it when no set with the same members exists.
func (s *Store) GetOrCreateInstanceSet(ctx context.Context, ids []string) (*model.InstanceSet, error) {
	if len(ids) == 0 {
		return nil, errors.New("instance set needs at least one instance")
	}
	members := slices.Clone(ids)
	slices.Sort(members)
	members = slices.Compact(members)
	digest := InstanceSetDigest(members)

	set := &model.InstanceSet{Digest: digest, InstanceIDs: members}
	err := s.queryRow(ctx, "SELECT id FROM instance_set WHERE digest = ?", digest).Scan(&set.ID)
	if err == nil {
		return set, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find instance set: %w", err)
	}

	// A concurrent writer may insert the same digest; the re-select below
	// picks up whichever row won.
	newID := s.newID()
	if _, err := s.exec(ctx,
		"INSERT INTO instance_set(id, digest) VALUES(?, ?) ON CONFLICT (digest) DO NOTHING",
		newID, digest); err != nil {
		return nil, fmt.Errorf("insert instance set: %w", err)
	}
	if err := s.queryRow(ctx, "SELECT id FROM instance_set WHERE digest = ?", digest).Scan(&set.ID); err != nil {
		return nil, fmt.Errorf("reload instance set: %w", err)
	}
	if set.ID != newID {
		return set, nil
	}
	for _, id := range members {
		if _, err := s.exec(ctx,
			"INSERT INTO instance_set_member(instance_set_id, instance_id) VALUES(?, ?)",
			set.ID, id); err != nil {
			return nil, fmt.Errorf("insert instance set member: %w", err)
		}
	}
	return set, nil
}

// InstanceSetMembers returns the sorted instance ids of a set.
func (s *Store) InstanceSetMembers(ctx context.Context, setID string) ([]string, error) {
	rows, err := s.query(ctx,
		"SELECT instance_id FROM instance_set_member WHERE instance_set_id = ? ORDER BY instance_id", setID)
	if err != nil {
		return nil, fmt.Errorf("list instance set members: %w", err)
	}
	ids, err := collectStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan instance set members: %w", err)
	}
	return ids, nil
}
