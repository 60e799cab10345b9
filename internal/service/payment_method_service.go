package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/divvyhq/divvy/internal/models"
)

// PaymentMethodInput is the payload for registering a payment method.
type PaymentMethodInput struct {
	UserID string `json:"user_id" validate:"required"`
	Kind   string `json:"kind" validate:"required"`
	Label  string `json:"label" validate:"required"`
	Handle string `json:"handle" validate:"required"`
}

// CreatePaymentMethod registers a payout channel for a user.
func (s *Service) CreatePaymentMethod(ctx context.Context, in PaymentMethodInput) (models.PaymentMethod, error) {
	if err := s.checkStruct(in); err != nil {
		return models.PaymentMethod{}, err
	}

	pm := models.PaymentMethod{
		UserID:    in.UserID,
		Kind:      in.Kind,
		Label:     in.Label,
		Handle:    in.Handle,
		CreatedAt: time.Now().Unix(),
	}

	payload, err := json.Marshal(pm)
	if err != nil {
		return models.PaymentMethod{}, fmt.Errorf("failed to encode payment method: %w", err)
	}

	raw, handled, err := s.tryCreateOnline(ctx, models.EntityPaymentMethod, payload)
	if err != nil {
		return models.PaymentMethod{}, err
	}
	if handled {
		id, err := s.domain.ApplyRemote(ctx, models.EntityPaymentMethod, raw)
		if err != nil {
			return models.PaymentMethod{}, err
		}
		for _, got := range s.domain.PaymentMethodsByUser(pm.UserID) {
			if got.ID == id {
				return got, nil
			}
		}
		return pm, nil
	}

	tempID := s.ids.TempID()
	pm.ID = tempID
	if err := s.domain.UpsertPaymentMethod(ctx, pm); err != nil {
		return models.PaymentMethod{}, err
	}
	snapshot, err := json.Marshal(pm)
	if err != nil {
		return models.PaymentMethod{}, fmt.Errorf("failed to encode payment method: %w", err)
	}
	if err := s.enqueue(ctx, models.EntityPaymentMethod, models.OpCreate, tempID, snapshot); err != nil {
		return models.PaymentMethod{}, err
	}
	return pm, nil
}

// DeletePaymentMethod removes a payout channel.
func (s *Service) DeletePaymentMethod(ctx context.Context, userID, id string) error {
	found := false
	for _, pm := range s.domain.PaymentMethodsByUser(userID) {
		if pm.ID == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("payment method %q: %w", id, ErrNotFound)
	}

	resolved := s.ids.Resolve(id)
	handled, err := s.tryDeleteOnline(ctx, models.EntityPaymentMethod, resolved)
	if err != nil {
		return err
	}
	if err := s.domain.Remove(ctx, models.EntityPaymentMethod, id); err != nil {
		return err
	}
	if handled {
		return nil
	}
	return s.enqueue(ctx, models.EntityPaymentMethod, models.OpDelete, resolved, nil)
}

// PaymentMethods lists a user's payout channels.
func (s *Service) PaymentMethods(userID string) []models.PaymentMethod {
	return s.domain.PaymentMethodsByUser(userID)
}
