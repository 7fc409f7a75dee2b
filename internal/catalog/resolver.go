package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/goodsin-backend/pkg/db/models"
)

// Resolution is what the catalog knows about one scanned code.
type Resolution struct {
	Code      string     `json:"code"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	CaseUnits *int       `json:"case_units,omitempty"`
	// IsOuter is true when the code matched a case/outer barcode.
	IsOuter bool `json:"is_outer"`
	IsKnown bool `json:"is_known"`
}

// Resolver looks up barcodes in the supplier catalog.
type Resolver interface {
	ResolveBarcode(ctx context.Context, code string) (Resolution, error)
}

// Repository reads the catalog_products read model.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*models.CatalogProduct, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindByCode prefers a consumer barcode match over an outer code match.
func (r *repository) FindByCode(ctx context.Context, code string) (*models.CatalogProduct, error) {
	var product models.CatalogProduct
	err := r.db.WithContext(ctx).
		Where("barcode = ?", code).
		First(&product).Error
	if err == nil {
		return &product, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	err = r.db.WithContext(ctx).
		Where("outer_code = ?", code).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

type repoResolver struct {
	repo Repository
}

// NewRepositoryResolver resolves codes straight from the database.
func NewRepositoryResolver(repo Repository) Resolver {
	return &repoResolver{repo: repo}
}

func (r *repoResolver) ResolveBarcode(ctx context.Context, code string) (Resolution, error) {
	code = strings.TrimSpace(code)
	res := Resolution{Code: code}
	if code == "" {
		return res, nil
	}
	product, err := r.repo.FindByCode(ctx, code)
	if err != nil {
		return res, err
	}
	if product == nil {
		return res, nil
	}
	pid := product.ProductID
	res.ProductID = &pid
	res.IsKnown = true
	res.IsOuter = product.Barcode != code
	if product.CaseUnits != nil && *product.CaseUnits > 0 {
		units := *product.CaseUnits
		res.CaseUnits = &units
	}
	return res, nil
}
