package billing

import (
	"context"

	"clientdesk/internal/types"
)

// ensureCustomer returns a processor customer id for the user, creating and
// persisting one when the cached id is missing or no longer exists on the
// processor. At most one local write happens per call.
//
// Only a definitive "gone" answer (not found, or deleted) triggers a recreate.
// Any other read failure aborts so a transient outage cannot fork the user
// into two processor customers.
func (s *Service) ensureCustomer(ctx context.Context, rec *types.SubscriptionRecord) (string, error) {
	if rec.ExternalCustomerID != "" {
		cus, err := s.processor.GetCustomer(ctx, rec.ExternalCustomerID)
		switch {
		case err == nil && !cus.Deleted:
			return cus.ID, nil
		case err == nil, types.HasCode(err, types.ErrCodeNotFoundProcessorResource):
			s.logger.InfoContext(ctx, "cached processor customer is gone, recreating",
				"user_id", rec.UserID,
				"customer_id", rec.ExternalCustomerID,
			)
		default:
			return "", s.processorError(ctx, opEnsureCustomer, err)
		}
	}

	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return "", err
	}

	cus, err := s.processor.CreateCustomer(ctx, types.CreateCustomerParams{
		UserID:         user.ID,
		Email:          user.Email,
		Name:           user.Name,
		// The replaced id is part of the key so a recreate after a deletion
		// never replays the create that produced the deleted customer.
		IdempotencyKey: s.keys.Key(opCreateCustomer, user.ID, "", s.now(), "replaces="+rec.ExternalCustomerID),
	})
	if err != nil {
		return "", s.processorError(ctx, opEnsureCustomer, err)
	}

	if err := s.store.UpdateCustomerID(ctx, rec.UserID, cus.ID); err != nil {
		return "", err
	}
	rec.ExternalCustomerID = cus.ID

	s.logger.InfoContext(ctx, "bound processor customer",
		"user_id", rec.UserID,
		"customer_id", cus.ID,
	)
	return cus.ID, nil
}
