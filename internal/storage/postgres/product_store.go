package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pharmintel/pricewatch/internal/pharma"
)

// ProductStore implements pharma.ProductStore on the products and
// price_history tables. History is derived in application code inside
// the upsert transaction rather than by a database trigger, so the
// exactly-once-on-change guarantee is testable and portable.
type ProductStore struct {
	db    DB
	clock pharma.Clock
}

// NewProductStore constructs a ProductStore over an existing pool.
func NewProductStore(db DB, clock pharma.Clock) (*ProductStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &ProductStore{db: db, clock: clock}, nil
}

// Upsert replaces the row for (source, site_code), appending a price
// history entry exactly when current_price changed. The row lock taken
// by SELECT ... FOR UPDATE serializes concurrent upserts per key, so
// the old price is read exactly once per write.
func (s *ProductStore) Upsert(ctx context.Context, p *pharma.Product) (pharma.PriceChange, bool, error) {
	if p.SiteCode == "" {
		return pharma.PriceChange{}, false, fmt.Errorf("product site_code is required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return pharma.PriceChange{}, false, &pharma.PersistenceError{Op: "begin upsert", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	record := *p
	if record.ScrapedAt.IsZero() {
		record.ScrapedAt = s.clock.Now()
	}

	var oldPrice float64
	err = tx.QueryRow(ctx, `
		SELECT current_price FROM products
		WHERE pharmacy_source = $1 AND site_code = $2
		FOR UPDATE;
	`, record.Source, record.SiteCode).Scan(&oldPrice)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if err := s.insert(ctx, tx, &record); err != nil {
			return pharma.PriceChange{}, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return pharma.PriceChange{}, false, &pharma.PersistenceError{Op: "commit insert", Err: err}
		}
		return pharma.PriceChange{}, false, nil

	case err != nil:
		return pharma.PriceChange{}, false, &pharma.PersistenceError{Op: "read old price", Err: err}
	}

	changed := oldPrice != record.CurrentPrice
	var change pharma.PriceChange
	if changed {
		change = pharma.PriceChange{
			Source:    record.Source,
			SiteCode:  record.SiteCode,
			OldPrice:  oldPrice,
			NewPrice:  record.CurrentPrice,
			ChangedAt: s.clock.Now(),
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO price_history (pharmacy_source, site_code, old_price, new_price, changed_at)
			VALUES ($1, $2, $3, $4, $5);
		`, change.Source, change.SiteCode, change.OldPrice, change.NewPrice, change.ChangedAt); err != nil {
			return pharma.PriceChange{}, false, &pharma.PersistenceError{Op: "append price history", Err: err}
		}
	}

	if err := s.update(ctx, tx, &record); err != nil {
		return pharma.PriceChange{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return pharma.PriceChange{}, false, &pharma.PersistenceError{Op: "commit upsert", Err: err}
	}
	return change, changed, nil
}

func (s *ProductStore) insert(ctx context.Context, tx pgx.Tx, p *pharma.Product) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO products (
			pharmacy_source, site_code, barcode,
			product_name, brand, product_description, category_path, main_category,
			current_price, original_price, discount_percentage, discount_amount,
			bank_discount_price, bank_discount_bank_name,
			requires_prescription, payment_methods, shipping_options, image_url,
			product_url, scraped_at
		) VALUES (
			$1, $2, NULLIF($3, ''),
			$4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''),
			$9, $10, $11, $12,
			$13, NULLIF($14, ''),
			$15, NULLIF($16, ''), NULLIF($17, ''), NULLIF($18, ''),
			$19, $20
		);
	`, productArgs(p)...); err != nil {
		return &pharma.PersistenceError{Op: "insert product", Err: err}
	}
	return nil
}

func (s *ProductStore) update(ctx context.Context, tx pgx.Tx, p *pharma.Product) error {
	if _, err := tx.Exec(ctx, `
		UPDATE products SET
			barcode = NULLIF($3, ''),
			product_name = $4,
			brand = NULLIF($5, ''),
			product_description = NULLIF($6, ''),
			category_path = $7,
			main_category = NULLIF($8, ''),
			current_price = $9,
			original_price = $10,
			discount_percentage = $11,
			discount_amount = $12,
			bank_discount_price = $13,
			bank_discount_bank_name = NULLIF($14, ''),
			requires_prescription = $15,
			payment_methods = NULLIF($16, ''),
			shipping_options = NULLIF($17, ''),
			image_url = NULLIF($18, ''),
			product_url = $19,
			scraped_at = $20
		WHERE pharmacy_source = $1 AND site_code = $2;
	`, productArgs(p)...); err != nil {
		return &pharma.PersistenceError{Op: "update product", Err: err}
	}
	return nil
}

func productArgs(p *pharma.Product) []any {
	return []any{
		p.Source, p.SiteCode, p.Barcode,
		p.Name, p.Brand, p.Description, p.CategoryPath, p.MainCategory,
		p.CurrentPrice, p.OriginalPrice, p.DiscountPercentage, p.DiscountAmount,
		p.BankDiscountPrice, p.BankDiscountBank,
		p.RequiresPrescription, p.PaymentMethods, p.ShippingOptions, p.ImageURL,
		p.SourceURL, p.ScrapedAt,
	}
}

// Get returns the stored product for the key, or pharma.ErrNotFound.
func (s *ProductStore) Get(ctx context.Context, key pharma.ProductKey) (*pharma.Product, error) {
	var p pharma.Product
	err := s.db.QueryRow(ctx, `
		SELECT pharmacy_source, site_code, COALESCE(barcode, ''),
		       product_name, COALESCE(brand, ''), COALESCE(product_description, ''),
		       category_path, COALESCE(main_category, ''),
		       current_price, original_price, discount_percentage, discount_amount,
		       bank_discount_price, COALESCE(bank_discount_bank_name, ''),
		       requires_prescription, COALESCE(payment_methods, ''),
		       COALESCE(shipping_options, ''), COALESCE(image_url, ''),
		       product_url, scraped_at
		FROM products
		WHERE pharmacy_source = $1 AND site_code = $2;
	`, key.Source, key.SiteCode).Scan(
		&p.Source, &p.SiteCode, &p.Barcode,
		&p.Name, &p.Brand, &p.Description,
		&p.CategoryPath, &p.MainCategory,
		&p.CurrentPrice, &p.OriginalPrice, &p.DiscountPercentage, &p.DiscountAmount,
		&p.BankDiscountPrice, &p.BankDiscountBank,
		&p.RequiresPrescription, &p.PaymentMethods,
		&p.ShippingOptions, &p.ImageURL,
		&p.SourceURL, &p.ScrapedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pharma.ErrNotFound
	}
	if err != nil {
		return nil, &pharma.PersistenceError{Op: "get product", Err: err}
	}
	return &p, nil
}

// PriceHistory returns recorded price changes for the key, oldest first.
func (s *ProductStore) PriceHistory(ctx context.Context, key pharma.ProductKey) ([]pharma.PriceChange, error) {
	rows, err := s.db.Query(ctx, `
		SELECT pharmacy_source, site_code, old_price, new_price, changed_at
		FROM price_history
		WHERE pharmacy_source = $1 AND site_code = $2
		ORDER BY changed_at ASC;
	`, key.Source, key.SiteCode)
	if err != nil {
		return nil, &pharma.PersistenceError{Op: "list price history", Err: err}
	}
	defer rows.Close()

	var changes []pharma.PriceChange
	for rows.Next() {
		var c pharma.PriceChange
		if err := rows.Scan(&c.Source, &c.SiteCode, &c.OldPrice, &c.NewPrice, &c.ChangedAt); err != nil {
			return nil, &pharma.PersistenceError{Op: "scan price history row", Err: err}
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &pharma.PersistenceError{Op: "iterate price history rows", Err: err}
	}
	return changes, nil
}
