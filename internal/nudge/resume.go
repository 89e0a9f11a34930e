package nudge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/vecstore"
	"github.com/spigell/jobmatch/internal/vector"
)

const ReasonNoOtherUsers = "no_other_users_in_vector_store"

type ResumeOutcome struct {
	UserID      string   `json:"user_id"`
	Updated     bool     `json:"updated"`
	Reason      string   `json:"reason,omitempty"`
	SampleSize  int      `json:"sample_size,omitempty"`
	ClosestIDs  []string `json:"closest_user_ids,omitempty"`
	FarthestIDs []string `json:"farthest_user_ids,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// ResumeUpdate re-places a user after a resume change. A fresh vector is composed as if
// the user were new, against the other users only, and averaged with the stored one.
// Without other users only the stored resume text changes.
func (n *Nudger) ResumeUpdate(ctx context.Context, userID, resumeText string) (*ResumeOutcome, error) {
	unlock := n.locks.lock(lockKey(domain.EntityUser, userID))
	defer unlock()

	old, err := n.mustGet(ctx, domain.EntityUser, userID)
	if err != nil {
		return nil, err
	}

	meta, _, err := n.store.Metadata(ctx, domain.EntityUser, userID)
	if err != nil {
		return nil, fmt.Errorf("load user metadata: %w", err)
	}
	meta = meta.Clone()
	if meta == nil {
		meta = domain.Metadata{}
	}
	meta["resume_text"] = resumeText

	entries, err := n.store.List(ctx, domain.EntityUser)
	if err != nil {
		return nil, fmt.Errorf("list user vectors: %w", err)
	}
	pool := make([]vecstore.Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID != userID {
			pool = append(pool, e)
		}
	}

	if len(pool) == 0 {
		if err := n.store.Upsert(ctx, domain.EntityUser, userID, old, meta); err != nil {
			return nil, fmt.Errorf("store user metadata: %w", err)
		}
		n.logger.Info("resume stored without re-placement",
			zap.String(logger.FieldUser, userID),
			zap.String("reason", ReasonNoOtherUsers),
		)
		return &ResumeOutcome{UserID: userID, Reason: ReasonNoOtherUsers}, nil
	}

	if n.composer == nil {
		return nil, errors.New("resume update requires a vector composer")
	}
	fresh, err := n.composer.Compose(ctx, domain.EntityUser, meta, pool)
	if err != nil {
		return nil, fmt.Errorf("compose fresh user vector: %w", err)
	}

	blended := vector.Normalize(vector.Combine(0.5, old, 0.5, fresh.Vector))
	if err := n.store.Upsert(ctx, domain.EntityUser, userID, blended, meta); err != nil {
		return nil, fmt.Errorf("store user vector: %w", err)
	}

	n.logger.Info("user vector re-placed after resume update",
		zap.String(logger.FieldUser, userID),
		zap.Int("sample_size", fresh.SampleSize),
		zap.String("source", fresh.Source),
	)

	return &ResumeOutcome{
		UserID:      userID,
		Updated:     true,
		SampleSize:  fresh.SampleSize,
		ClosestIDs:  fresh.ClosestIDs,
		FarthestIDs: fresh.FarthestIDs,
		Source:      fresh.Source,
	}, nil
}
