package payouts

import "github.com/creatorhub/backend/internal/models"

// Status changes after creation come from the payment rail.
var transitions = map[models.PayoutStatus][]models.PayoutStatus{
	models.PayoutPending:    {models.PayoutProcessing, models.PayoutFailed},
	models.PayoutProcessing: {models.PayoutCompleted, models.PayoutFailed},
}

func CanTransition(from, to models.PayoutStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
