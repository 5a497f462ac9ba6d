package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EnsureDevData seeds two merchants, a routing rule set and a small BIN table
// so a fresh local install can take payments immediately. Inserts are
// conflict-safe, so running it on every boot is fine.
func EnsureDevData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureMerchants(ctx, tx); err != nil {
			return err
		}
		if err := ensureRoutingRules(ctx, tx, node); err != nil {
			return err
		}
		return ensureBins(ctx, tx)
	})
}

func ensureMerchants(ctx context.Context, tx *gorm.DB) error {
	merchants := []struct {
		ID, Name, APIKey, WebhookURL, WebhookSecret string
	}{
		{"MERCH-001", "Coffee Corner", "pk_test_coffee_corner", "http://localhost:9090/webhooks", "whsec_coffee_corner"},
		{"MERCH-002", "Book Nook", "pk_test_book_nook", "", ""},
	}
	for _, m := range merchants {
		err := tx.WithContext(ctx).Exec(
			`INSERT INTO merchants (merchant_id, name, api_key, webhook_url, webhook_secret, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?, true, ?)
			 ON CONFLICT (merchant_id) DO NOTHING`,
			m.ID, m.Name, m.APIKey, m.WebhookURL, m.WebhookSecret, time.Now().UTC(),
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureRoutingRules(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).Raw(`SELECT COUNT(1) FROM routing_rules`).Scan(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	rules := []struct {
		MerchantID, Currency, BinPrefix, Provider string
		Commission                                decimal.Decimal
		Priority                                  int
	}{
		{"*", "*", "411111", "mock", decimal.NewFromFloat(0.99), 100},
		{"MERCH-001", "*", "", "mock", decimal.NewFromFloat(1.49), 50},
		{"*", "EUR", "", "mock", decimal.NewFromFloat(1.79), 10},
	}
	for _, r := range rules {
		err := tx.WithContext(ctx).Exec(
			`INSERT INTO routing_rules (id, merchant_id, currency, bin_prefix, provider, commission_rate, priority, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, true, ?)`,
			node.Generate(), r.MerchantID, r.Currency, r.BinPrefix, r.Provider, r.Commission, r.Priority, time.Now().UTC(),
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func ensureBins(ctx context.Context, tx *gorm.DB) error {
	bins := []struct {
		Bin, Bank, Scheme, CardType, Country string
	}{
		{"411111", "Test Bank", "VISA", "CREDIT", "US"},
		{"555555", "Test Bank", "MASTERCARD", "CREDIT", "US"},
		{"400000", "Acme Bank", "VISA", "DEBIT", "GB"},
	}
	for _, b := range bins {
		err := tx.WithContext(ctx).Exec(
			`INSERT INTO bin_database (bin, bank, scheme, card_type, country)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (bin) DO NOTHING`,
			b.Bin, b.Bank, b.Scheme, b.CardType, b.Country,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}
