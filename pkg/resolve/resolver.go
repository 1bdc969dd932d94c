// Package resolve consolidates extracted entity candidates against the
// stored graph. At most one entity per real-world concept survives within a
// type; losers of a merge become tombstones redirecting to the winner.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/ai"
	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Oracle is the same-concept confirmation capability. Implementations may
// return ai.ErrUnavailable, in which case the resolver degrades to
// exact-name matching and flags results for review.
type Oracle interface {
	ConfirmSameConcept(ctx context.Context, a, b common.Candidate) (bool, error)
}

type Resolver struct {
	store  store.GraphStore
	oracle Oracle
	locks  store.Locker

	topK     int
	minScore float64
}

type Option func(*Resolver)

// WithTopK sets how many lexical candidates are considered per resolution.
func WithTopK(k int) Option {
	return func(r *Resolver) {
		r.topK = k
	}
}

// WithMinScore sets the lexical score below which candidates are not sent
// to the confirmation oracle.
func WithMinScore(score float64) Option {
	return func(r *Resolver) {
		r.minScore = score
	}
}

func New(s store.GraphStore, oracle Oracle, locks store.Locker, opts ...Option) *Resolver {
	r := &Resolver{
		store:    s,
		oracle:   oracle,
		locks:    locks,
		topK:     util.GetEnvInt("RESOLVER_TOP_K", 5),
		minScore: util.GetEnvNumeric("RESOLVER_MIN_SCORE", 0.1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a candidate to the id of the entity representing its concept,
// merging into an existing entity when the oracle confirms a match and
// creating a new one otherwise. Resolution is serialized per
// (type, normalized name) so concurrent ingestions of a never-seen concept
// cannot create duplicates.
func (r *Resolver) Resolve(ctx context.Context, cand common.Candidate, sourceID string) (string, error) {
	key := string(cand.Type) + "|" + util.NormalizeName(cand.Name)

	var id string
	err := r.locks.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		id, err = r.resolveLocked(ctx, cand, sourceID)
		return err
	})
	return id, err
}

func (r *Resolver) resolveLocked(ctx context.Context, cand common.Candidate, sourceID string) (string, error) {
	hits, err := r.store.SearchEntities(ctx, store.EntityQuery{
		Text:  cand.Name + " " + cand.Description,
		Type:  cand.Type,
		Limit: r.topK,
	})
	if err != nil {
		return "", fmt.Errorf("lexical candidate search: %w", err)
	}

	var winner *common.Entity
	for i := range hits {
		hit := &hits[i].Entity
		if hits[i].Score < r.minScore {
			break
		}

		same, err := r.oracle.ConfirmSameConcept(ctx, cand, common.Candidate{
			Type:        hit.Type,
			Name:        hit.Name,
			Description: hit.Description,
		})
		if errors.Is(err, ai.ErrUnavailable) {
			return r.resolveByExactName(ctx, cand, sourceID, hits)
		}
		if err != nil {
			return "", fmt.Errorf("same-concept confirmation: %w", err)
		}
		if !same {
			continue
		}

		if winner == nil {
			if err := r.mergeCandidate(ctx, hit, cand, sourceID); err != nil {
				return "", err
			}
			winner = hit
			continue
		}

		// A second stored entity confirmed as the same concept: the graph
		// holds a duplicate. Fold it into the winner.
		if err := r.Consolidate(ctx, winner.ID, hit.ID); err != nil {
			return "", err
		}
	}

	if winner != nil {
		return winner.ID, nil
	}
	return r.create(ctx, cand, sourceID, false)
}

// resolveByExactName is the degraded path when no confirmation oracle is
// reachable: only an exact normalized-name match merges, and everything
// touched is flagged for review.
func (r *Resolver) resolveByExactName(ctx context.Context, cand common.Candidate, sourceID string, hits []store.ScoredEntity) (string, error) {
	logger.Warn("Confirmation oracle unavailable, falling back to exact-name resolution",
		"type", cand.Type, "name", cand.Name)

	key := util.NormalizeName(cand.Name)
	for i := range hits {
		hit := &hits[i].Entity
		if util.NormalizeName(hit.Name) != key {
			continue
		}
		if err := r.mergeCandidate(ctx, hit, cand, sourceID); err != nil {
			return "", err
		}
		hit.NeedsReview = true
		if err := r.store.UpdateEntity(ctx, hit); err != nil {
			return "", err
		}
		return hit.ID, nil
	}
	return r.create(ctx, cand, sourceID, true)
}

func (r *Resolver) create(ctx context.Context, cand common.Candidate, sourceID string, needsReview bool) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	ent := &common.Entity{
		ID:          id,
		Type:        cand.Type,
		Name:        util.Canonicalize(cand.Name),
		Description: cand.Description,
		Attributes:  cand.Attributes,
		Provenance:  provenanceFor(id, sourceID, cand.Quote),
		NeedsReview: needsReview,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.store.SaveEntity(ctx, ent); err != nil {
		return "", fmt.Errorf("save entity: %w", err)
	}
	logger.Debug("Created entity", "id", id, "type", cand.Type, "name", ent.Name)
	return id, nil
}

// mergeCandidate folds a candidate into an existing entity: attribute union
// with candidate-wins on conflicts, provenance append, description filled
// only when missing.
func (r *Resolver) mergeCandidate(ctx context.Context, ent *common.Entity, cand common.Candidate, sourceID string) error {
	if ent.Description == "" {
		ent.Description = cand.Description
	}
	if len(cand.Attributes) > 0 && ent.Attributes == nil {
		ent.Attributes = make(map[string]string, len(cand.Attributes))
	}
	for k, v := range cand.Attributes {
		if v == "" {
			continue
		}
		ent.Attributes[k] = v
	}
	ent.Provenance = append(ent.Provenance, provenanceFor(ent.ID, sourceID, cand.Quote)...)

	if err := r.store.UpdateEntity(ctx, ent); err != nil {
		return fmt.Errorf("merge entity %s: %w", ent.ID, err)
	}
	return nil
}

// Consolidate merges the loser entity into the winner: attributes the winner
// is missing, provenance, and chunk links are carried over, then the loser
// becomes a tombstone redirecting to the winner.
func (r *Resolver) Consolidate(ctx context.Context, winnerID, loserID string) error {
	winner, err := r.store.Entity(ctx, winnerID)
	if err != nil {
		return err
	}
	loser, err := r.store.Entity(ctx, loserID)
	if err != nil {
		return err
	}
	if winner.ID == loser.ID {
		return nil
	}

	if winner.Description == "" {
		winner.Description = loser.Description
	}
	for k, v := range loser.Attributes {
		if _, ok := winner.Attributes[k]; ok || v == "" {
			continue
		}
		if winner.Attributes == nil {
			winner.Attributes = make(map[string]string)
		}
		winner.Attributes[k] = v
	}
	winner.Provenance = append(winner.Provenance, loser.Provenance...)
	winner.NeedsReview = winner.NeedsReview || loser.NeedsReview

	if err := r.store.UpdateEntity(ctx, winner); err != nil {
		return err
	}
	if len(loser.ChunkIDs) > 0 {
		for _, chunkID := range loser.ChunkIDs {
			if err := r.store.LinkChunkEntities(ctx, chunkID, []string{winner.ID}); err != nil {
				return err
			}
		}
	}
	if err := r.store.TombstoneEntity(ctx, loser.ID, winner.ID); err != nil {
		return err
	}

	logger.Info("Consolidated duplicate entity", "winner", winner.ID, "loser", loser.ID, "name", winner.Name)
	return nil
}

func provenanceFor(entityID, sourceID, quote string) []common.ProvenanceLink {
	if sourceID == "" {
		return nil
	}
	return []common.ProvenanceLink{{
		EntityID: entityID,
		SourceID: sourceID,
		Quote:    quote,
	}}
}
