package cart

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes cart operations used by the HTTP layer and checkout.
type Service interface {
	Items(ctx context.Context, userID string) ([]Item, error)
	Add(ctx context.Context, userID string, item Item) (Item, error)
	SetQuantity(ctx context.Context, userID string, id Identity, quantity int) error
	Remove(ctx context.Context, userID string, id Identity) error
	Clear(ctx context.Context, userID string) error
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds a cart service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Items(ctx context.Context, userID string) ([]Item, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, fromModel(row))
	}
	return items, nil
}

// Add inserts a line or merges quantity into the line with the same identity.
func (s *service) Add(ctx context.Context, userID string, item Item) (Item, error) {
	if err := requireUser(userID); err != nil {
		return Item{}, err
	}
	if err := item.validate(); err != nil {
		return Item{}, err
	}

	var merged Item
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByIdentity(ctx, userID, item.Identity())
		if err != nil {
			return err
		}
		if existing == nil {
			row := toModel(userID, item)
			if err := repo.Create(ctx, &row); err != nil {
				return err
			}
			merged = fromModel(row)
			return nil
		}
		quantity := existing.Quantity + item.Quantity
		existing.Name = strings.TrimSpace(item.Name)
		existing.UnitPrice = item.UnitPrice
		if err := repo.UpdateQuantity(ctx, *existing, quantity); err != nil {
			return err
		}
		existing.Quantity = quantity
		merged = fromModel(*existing)
		return nil
	})
	if err != nil {
		return Item{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	return merged, nil
}

// SetQuantity replaces a line's quantity. Zero or less removes the line.
func (s *service) SetQuantity(ctx context.Context, userID string, id Identity, quantity int) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if quantity <= 0 {
		return s.Remove(ctx, userID, id)
	}
	id = Item{ProductID: id.ProductID, SelectedSize: id.SelectedSize, SelectedColor: id.SelectedColor}.Identity()
	existing, err := s.repo.FindByIdentity(ctx, userID, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if existing == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err := s.repo.UpdateQuantity(ctx, *existing, quantity); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	return nil
}

func (s *service) Remove(ctx context.Context, userID string, id Identity) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	id = Item{ProductID: id.ProductID, SelectedSize: id.SelectedSize, SelectedColor: id.SelectedColor}.Identity()
	removed, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if removed == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return nil
}

// Clear empties the cart. Clearing an empty cart is not an error.
func (s *service) Clear(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if _, err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return pkgerrors.Validation("user id is required", pkgerrors.FieldViolation{Field: "userId", Reason: "required"})
	}
	return nil
}
