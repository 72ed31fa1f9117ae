package service

import (
	"context"

	"github.com/edustack/campus-api/internal/authz"
	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
)

// authorize asks the policy for a decision and maps a denial onto the error
// taxonomy: 401 when the caller is unauthenticated, 403 otherwise. Every
// service operation passes through here before touching a repository, and
// list operations fold the returned row filter into their query filters.
func authorize(ctx context.Context, policy *authz.Policy, actor *models.Identity, action authz.Action, resource authz.Resource, scope authz.Scope) (authz.RowFilter, error) {
	decision, err := policy.Evaluate(ctx, actor, action, resource, scope)
	if err != nil {
		return authz.RowFilter{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "authorization check failed")
	}
	if !decision.Allowed {
		if actor == nil {
			return authz.RowFilter{}, appErrors.Clone(appErrors.ErrUnauthorized, decision.Reason)
		}
		return authz.RowFilter{}, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}
	return decision.Filter, nil
}
