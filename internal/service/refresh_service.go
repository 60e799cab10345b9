package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/divvyhq/divvy/internal/models"
)

// refreshOrder lists the collections a full pull replaces.
var refreshOrder = []models.EntityType{
	models.EntityGroup,
	models.EntityExpense,
	models.EntitySettlement,
	models.EntityPaymentMethod,
}

// Refresh re-pulls every collection from the server and replaces the local
// copies. It is the recovery path after a corrupt queue flush, and the
// sync-then-pull step at session start.
//
// Collections are pulled concurrently; any failure aborts the whole refresh
// so the cache never holds a half-replaced view.
func (s *Service) Refresh(ctx context.Context) error {
	if !s.conn.Online() {
		return fmt.Errorf("refresh: %w", ErrOffline)
	}

	pulled := make(map[models.EntityType][]byte, len(refreshOrder))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, entity := range refreshOrder {
		g.Go(func() error {
			raw, err := s.api.Pull(ctx, entity)
			if err != nil {
				return fmt.Errorf("failed to pull %s: %w", entity, err)
			}
			mu.Lock()
			pulled[entity] = raw
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, entity := range refreshOrder {
		if err := s.domain.ReplaceCollection(ctx, entity, pulled[entity]); err != nil {
			return err
		}
	}
	slog.Info("refreshed local collections from server", "collections", len(refreshOrder))
	return nil
}
