// Package startracker keeps the follow and contact sets of each actor in
// the cache and uses them to flag match records.
//
// The cache set is authoritative while it is non-empty. An empty set is
// treated as a miss: the full list is fetched from the match backend and
// written back before it is returned.
package startracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/phrazzld/match-gateway/internal/backend"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/metrics"
	"github.com/phrazzld/match-gateway/internal/region"
	"github.com/phrazzld/match-gateway/internal/session"
)

// Backend is the subset of the backend client the tracker needs.
type Backend interface {
	Get(ctx context.Context, target string, query url.Values) (*backend.Result, error)
	Post(ctx context.Context, target string, body any) (*backend.Result, error)
	Delete(ctx context.Context, target string, query url.Values) (*backend.Result, error)
}

var _ Backend = (*backend.Client)(nil)

// Actor identifies whose sets are read, and where that actor is registered.
type Actor struct {
	Role   domain.Role
	RoleID string
	Region string
}

// Service reads and maintains relation sets.
type Service struct {
	cache   *session.Cache
	backend Backend
	regions *region.Directory
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService wires the tracker. m may be nil.
func NewService(cache *session.Cache, b Backend, regions *region.Directory, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:   cache,
		backend: b,
		regions: regions,
		metrics: m,
		logger:  logger.With("component", "star_tracker"),
	}
}

// FollowedIDs returns the IDs of the records a follows.
func (s *Service) FollowedIDs(ctx context.Context, a Actor) ([]string, error) {
	return s.IDs(ctx, a, domain.RelationFollow)
}

// ContactedIDs returns the IDs of the records a has contacted.
func (s *Service) ContactedIDs(ctx context.Context, a Actor) ([]string, error) {
	return s.IDs(ctx, a, domain.RelationContact)
}

// IDs returns the relation set of a, filling it from the match backend when
// the cached set is empty.
func (s *Service) IDs(ctx context.Context, a Actor, rel domain.Relation) ([]string, error) {
	if _, err := domain.ParseRole(string(a.Role)); err != nil {
		return nil, err
	}

	ids, err := s.cache.Members(ctx, a.Role, a.RoleID, rel)
	if err != nil {
		return nil, domain.ServerError("failed to read relation set", err)
	}
	if len(ids) > 0 {
		s.countLookup(rel, "hit")
		return ids, nil
	}
	s.countLookup(rel, "miss")

	base, err := s.relationURL(a, rel)
	if err != nil {
		return nil, err
	}
	res, err := s.backend.Get(ctx, base, nil)
	if err != nil {
		return nil, err
	}
	ids, err = decodeIDs(res.Data, a.Role.Target().IDField())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []string{}, nil
	}
	if _, err := s.cache.AddMembers(ctx, a.Role, a.RoleID, rel, ids...); err != nil {
		s.logger.Warn("failed to populate relation set",
			"relation", string(rel),
			"error", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Add records that a follows or contacted targetID: the match backend is
// updated first, then the cached set. It reports whether the relation
// changed. A cold set is left for the next read to fill from the backend,
// since writing only targetID would make an incomplete set look warm.
func (s *Service) Add(ctx context.Context, a Actor, rel domain.Relation, targetID string) (bool, error) {
	if err := validateTarget(a, targetID); err != nil {
		return false, err
	}
	base, err := s.relationURL(a, rel)
	if err != nil {
		return false, err
	}
	body := map[string]string{a.Role.Target().IDField(): targetID}
	if _, err := s.backend.Post(ctx, base, body); err != nil {
		return false, err
	}

	warm, err := s.warm(ctx, a, rel)
	if err != nil {
		return false, err
	}
	if !warm {
		return true, nil
	}
	added, err := s.cache.AddMembers(ctx, a.Role, a.RoleID, rel, targetID)
	if err != nil {
		return false, domain.ServerError("failed to update relation set", err)
	}
	return added > 0, nil
}

// Remove undoes Add. It reports whether the relation changed; on a cold set
// the backend's acceptance is the change.
func (s *Service) Remove(ctx context.Context, a Actor, rel domain.Relation, targetID string) (bool, error) {
	if err := validateTarget(a, targetID); err != nil {
		return false, err
	}
	base, err := s.relationURL(a, rel)
	if err != nil {
		return false, err
	}
	if _, err := s.backend.Delete(ctx, base+"/"+url.PathEscape(targetID), nil); err != nil {
		return false, err
	}

	warm, err := s.warm(ctx, a, rel)
	if err != nil {
		return false, err
	}
	if !warm {
		return true, nil
	}

	removed, err := s.cache.RemoveMembers(ctx, a.Role, a.RoleID, rel, targetID)
	if err != nil {
		return false, domain.ServerError("failed to update relation set", err)
	}
	return removed > 0, nil
}

// warm reports whether the cached set of a holds any member. Sets expire as
// a whole, so a non-empty set is complete.
func (s *Service) warm(ctx context.Context, a Actor, rel domain.Relation) (bool, error) {
	ids, err := s.cache.Members(ctx, a.Role, a.RoleID, rel)
	if err != nil {
		return false, domain.ServerError("failed to read relation set", err)
	}
	return len(ids) > 0, nil
}

// Matches fetches match records for a from its region's match backend and
// flags each record as followed and contacted.
func (s *Service) Matches(ctx context.Context, a Actor, query url.Values) ([]Record, error) {
	if _, err := domain.ParseRole(string(a.Role)); err != nil {
		return nil, err
	}
	matchURL, err := s.regions.Resolve(region.Match, a.Region)
	if err != nil {
		return nil, err
	}
	res, err := s.backend.Get(ctx, actorURL(matchURL, a)+"/matches", query)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(res.Data)
	if err != nil {
		return nil, err
	}

	idField := a.Role.Target().IDField()
	for _, rel := range []domain.Relation{domain.RelationFollow, domain.RelationContact} {
		ids, err := s.IDs(ctx, a, rel)
		if err != nil {
			return nil, err
		}
		records = Annotate(records, idField, ids, rel.Flag())
	}
	return records, nil
}

func (s *Service) relationURL(a Actor, rel domain.Relation) (string, error) {
	matchURL, err := s.regions.Resolve(region.Match, a.Region)
	if err != nil {
		return "", err
	}
	return actorURL(matchURL, a) + "/" + string(rel), nil
}

func actorURL(base string, a Actor) string {
	return base + "/" + string(a.Role) + "/" + url.PathEscape(a.RoleID)
}

func validateTarget(a Actor, targetID string) error {
	if _, err := domain.ParseRole(string(a.Role)); err != nil {
		return err
	}
	if strings.TrimSpace(targetID) == "" {
		return domain.ClientError("missing " + a.Role.Target().IDField())
	}
	return nil
}

// decodeRecords decodes match records keeping numbers as json.Number, so
// IDs beyond float64 precision are proxied unchanged.
func decodeRecords(data json.RawMessage) ([]Record, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, domain.ServerError("empty backend data", nil)
	}
	var records []Record
	if err := decodeNumbers(data, &records); err != nil {
		return nil, domain.ServerError("invalid backend data", err)
	}
	return records, nil
}

// decodeIDs accepts a list of IDs, string or numeric, or a list of records
// carrying idField.
func decodeIDs(data json.RawMessage, idField string) ([]string, error) {
	var raw []any
	if err := decodeNumbers(data, &raw); err != nil {
		return nil, domain.ServerError("backend returned a malformed relation list", err)
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case nil:
		case string:
			if v != "" {
				ids = append(ids, v)
			}
		case json.Number:
			ids = append(ids, v.String())
		case map[string]any:
			if id, ok := Record(v).ID(idField); ok {
				ids = append(ids, id)
			}
		default:
			return nil, domain.ServerError("backend returned a malformed relation entry", nil).
				WithData("entry", fmt.Sprint(v))
		}
	}
	return ids, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (s *Service) countLookup(rel domain.Relation, result string) {
	if s.metrics != nil {
		s.metrics.TrackerLookups.WithLabelValues(string(rel), result).Inc()
	}
}
