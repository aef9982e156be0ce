package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrValidation is returned for product payloads that cannot be stored.
var ErrValidation = errors.New("invalid product")

// Service provides catalog management on a Storage backend.
type Service struct {
	storage Storage
	logger  *zap.Logger
}

// NewService creates a new Service.
func NewService(storage Storage, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{storage: storage, logger: logger}
}

// List returns the catalog sorted by name.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.storage.List(ctx)
}

// Get looks a product up by code.
func (s *Service) Get(ctx context.Context, code string) (*Product, error) {
	return s.storage.Get(ctx, strings.TrimSpace(code))
}

// Create registers a new product. The code must not exist yet.
func (s *Service) Create(ctx context.Context, p Product) (*Product, error) {
	p, err := normalize(p)
	if err != nil {
		return nil, err
	}

	if err := s.storage.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			s.logger.Warn("duplicate product code", zap.String("code", p.Code))
			return nil, err
		}
		s.logger.Error("failed to create product", zap.String("code", p.Code), zap.Error(err))
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("product created", zap.String("code", p.Code), zap.String("price", p.UnitPrice.StringFixed(2)))
	return &p, nil
}

// Update replaces the name and price of an existing product.
func (s *Service) Update(ctx context.Context, p Product) (*Product, error) {
	p, err := normalize(p)
	if err != nil {
		return nil, err
	}

	if err := s.storage.Update(ctx, p); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("failed to update product", zap.String("code", p.Code), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("product updated", zap.String("code", p.Code))
	return &p, nil
}

// Delete removes a product by code.
func (s *Service) Delete(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if err := s.storage.Delete(ctx, code); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("failed to delete product", zap.String("code", code), zap.Error(err))
		}
		return err
	}

	s.logger.Info("product deleted", zap.String("code", code))
	return nil
}

func normalize(p Product) (Product, error) {
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)

	switch {
	case p.Code == "":
		return p, fmt.Errorf("%w: codigo is required", ErrValidation)
	case p.Name == "":
		return p, fmt.Errorf("%w: nome is required", ErrValidation)
	case !p.UnitPrice.IsPositive():
		return p, fmt.Errorf("%w: preco must be greater than zero", ErrValidation)
	}
	return p, nil
}
