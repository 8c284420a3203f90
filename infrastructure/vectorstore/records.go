package vectorstore

import (
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"crm-ai-agent/domain"
)

var errInvalidRecord = errors.New("invalid embedding record")

func validateRecord(r domain.EmbeddingRecord) error {
	switch {
	case r.EntityID == "":
		return fmt.Errorf("%w: entity id is empty", errInvalidRecord)
	case r.EntityType == "":
		return fmt.Errorf("%w: entity type is empty", errInvalidRecord)
	case r.TenantID == "":
		return fmt.Errorf("%w: %w", errInvalidRecord, domain.ErrMissingTenant)
	case len(r.Vector) == 0:
		return fmt.Errorf("%w: vector is empty", errInvalidRecord)
	}
	return nil
}

// matches applies the tenant, type and business identity predicates.
func matches(r domain.EmbeddingRecord, opts domain.SearchOptions) bool {
	if r.TenantID != opts.TenantID {
		return false
	}
	if opts.EntityType != "" && r.EntityType != opts.EntityType {
		return false
	}
	return opts.BusinessIdentityID == "" || r.BusinessIdentityID == opts.BusinessIdentityID
}

func toHit(r domain.EmbeddingRecord, similarity float64) domain.SearchHit {
	return domain.SearchHit{
		EntityID:   r.EntityID,
		EntityType: r.EntityType,
		TenantID:   r.TenantID,
		Similarity: similarity,
		Content:    r.Content,
		Metadata:   maps.Clone(r.Metadata),
		UpdatedAt:  r.UpdatedAt,
	}
}

// pointID derives a stable UUID so re-indexing an entity overwrites its point.
func pointID(entityID string, entityType domain.EntityType) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(string(entityType)+"/"+entityID)).String()
}
