package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/divvyhq/divvy/internal/models"
)

// GroupInput is the payload for creating or updating a group.
type GroupInput struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description,omitempty"`
	MemberIDs   []string `json:"member_ids" validate:"required,min=1,unique"`
}

func (s *Service) buildGroup(in GroupInput, ownerID string) (models.Group, error) {
	if err := s.checkStruct(in); err != nil {
		return models.Group{}, err
	}

	group := models.Group{
		Name:        in.Name,
		Description: in.Description,
	}
	for _, userID := range in.MemberIDs {
		role := models.RoleMember
		if userID == ownerID {
			role = models.RoleOwner
		}
		group.Members = append(group.Members, models.Member{UserID: userID, Role: role})
	}
	if !group.HasMember(ownerID) {
		group.Members = append([]models.Member{{UserID: ownerID, Role: models.RoleOwner}}, group.Members...)
	}
	return group, nil
}

// CreateGroup creates a new group. The calling user becomes its owner and is
// added as a member if the input left them out.
func (s *Service) CreateGroup(ctx context.Context, ownerID string, in GroupInput) (models.Group, error) {
	group, err := s.buildGroup(in, ownerID)
	if err != nil {
		return models.Group{}, err
	}
	group.CreatedAt = time.Now().Unix()

	payload, err := json.Marshal(group)
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to encode group: %w", err)
	}

	raw, handled, err := s.tryCreateOnline(ctx, models.EntityGroup, payload)
	if err != nil {
		return models.Group{}, err
	}
	if handled {
		id, err := s.domain.ApplyRemote(ctx, models.EntityGroup, raw)
		if err != nil {
			return models.Group{}, err
		}
		created, _ := s.domain.Group(id)
		return created, nil
	}

	tempID := s.ids.TempID()
	group.ID = tempID
	if err := s.domain.UpsertGroup(ctx, group); err != nil {
		return models.Group{}, err
	}
	snapshot, err := json.Marshal(group)
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to encode group: %w", err)
	}
	if err := s.enqueue(ctx, models.EntityGroup, models.OpCreate, tempID, snapshot); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// UpdateGroup replaces a group's name, description and member list. The owner
// set is preserved; removing every owner is rejected.
func (s *Service) UpdateGroup(ctx context.Context, id string, in GroupInput) (models.Group, error) {
	existing, ok := s.domain.Group(id)
	if !ok {
		return models.Group{}, fmt.Errorf("group %q: %w", id, ErrNotFound)
	}
	if err := s.checkStruct(in); err != nil {
		return models.Group{}, err
	}

	roles := make(map[string]string, len(existing.Members))
	for _, m := range existing.Members {
		roles[m.UserID] = m.Role
	}

	group := models.Group{
		ID:          existing.ID,
		Name:        in.Name,
		Description: in.Description,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   time.Now().Unix(),
	}
	hasOwner := false
	for _, userID := range in.MemberIDs {
		role, ok := roles[userID]
		if !ok {
			role = models.RoleMember
		}
		if role == models.RoleOwner {
			hasOwner = true
		}
		group.Members = append(group.Members, models.Member{UserID: userID, Role: role})
	}
	if !hasOwner {
		return models.Group{}, validationErr("group must keep at least one owner")
	}

	payload, err := json.Marshal(group)
	if err != nil {
		return models.Group{}, fmt.Errorf("failed to encode group: %w", err)
	}

	resolved := s.ids.Resolve(group.ID)
	raw, handled, err := s.tryUpdateOnline(ctx, models.EntityGroup, resolved, payload)
	if err != nil {
		return models.Group{}, err
	}
	if handled {
		updatedID, err := s.domain.ApplyRemote(ctx, models.EntityGroup, raw)
		if err != nil {
			return models.Group{}, err
		}
		updated, _ := s.domain.Group(updatedID)
		return updated, nil
	}

	if err := s.domain.UpsertGroup(ctx, group); err != nil {
		return models.Group{}, err
	}
	if err := s.enqueue(ctx, models.EntityGroup, models.OpUpdate, group.ID, payload); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// Groups lists all locally known groups.
func (s *Service) Groups() []models.Group { return s.domain.Groups() }

// Group returns one group by id.
func (s *Service) Group(id string) (models.Group, error) {
	group, ok := s.domain.Group(id)
	if !ok {
		return models.Group{}, fmt.Errorf("group %q: %w", id, ErrNotFound)
	}
	return group, nil
}

// GroupExpenses lists a group's expenses, oldest first.
func (s *Service) GroupExpenses(groupID string) ([]models.Expense, error) {
	if _, ok := s.domain.Group(groupID); !ok {
		return nil, fmt.Errorf("group %q: %w", groupID, ErrNotFound)
	}
	return s.domain.ExpensesByGroup(groupID), nil
}

// GroupSettlements lists a group's settlements, oldest first.
func (s *Service) GroupSettlements(groupID string) ([]models.Settlement, error) {
	if _, ok := s.domain.Group(groupID); !ok {
		return nil, fmt.Errorf("group %q: %w", groupID, ErrNotFound)
	}
	return s.domain.SettlementsByGroup(groupID), nil
}
