package repository

import (
	"context"

	"github.com/aanampa/shm-payment-orders/internal/apperr"
	"github.com/aanampa/shm-payment-orders/internal/database"
)

// ApprovalProfileRepository resolves the configured approval chain for a
// site and workflow group. Profile administration itself is out of scope;
// this repository only reads the configuration.
type ApprovalProfileRepository struct{}

// NewApprovalProfileRepository creates a new ApprovalProfileRepository.
func NewApprovalProfileRepository() *ApprovalProfileRepository {
	return &ApprovalProfileRepository{}
}

// ResolveChain returns the ordered approval levels for a workflow group
// with the users authorized at each level for the given site. Active
// profiles order by (level, sequence); user authority is site-scoped.
// The result is snapshotted onto the order's ledger at creation time and
// never re-evaluated.
func (r *ApprovalProfileRepository) ResolveChain(ctx context.Context, q database.Querier, siteID int64, workflowGroup string) ([]ApprovalChainLevel, error) {
	query := `
		SELECT p.level, p.sequence, p.name,
		       COALESCE(
		           ARRAY_AGG(u.user_id ORDER BY u.user_id) FILTER (WHERE u.user_id IS NOT NULL),
		           '{}'
		       )
		FROM approval_profiles p
		LEFT JOIN approval_profile_users u
		  ON u.profile_id = p.id AND u.site_id = $2 AND u.is_active
		WHERE p.workflow_group = $1 AND p.is_active
		GROUP BY p.id, p.level, p.sequence, p.name
		ORDER BY p.level ASC, p.sequence ASC
	`

	rows, err := q.Query(ctx, query, workflowGroup, siteID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to resolve approval chain")
	}
	defer rows.Close()

	var levels []ApprovalChainLevel
	for rows.Next() {
		var l ApprovalChainLevel
		if err := rows.Scan(&l.Level, &l.Sequence, &l.ProfileName, &l.AuthorizedUsers); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan approval chain level")
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}
