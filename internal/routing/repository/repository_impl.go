package repository

import (
	"context"

	"github.com/smallbiznis/payway/internal/routing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindMatchingRules(ctx context.Context, db *gorm.DB, merchantID, currency, bin string) ([]domain.RoutingRule, error) {
	var rules []domain.RoutingRule
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, currency, bin_prefix, provider, commission_rate, priority, is_active, created_at
		 FROM routing_rules
		 WHERE is_active = true
		   AND (merchant_id = ? OR merchant_id = '*')
		   AND (currency = ? OR currency = '*')
		   AND (bin_prefix = '' OR bin_prefix IS NULL OR ? LIKE bin_prefix || '%')
		 ORDER BY priority desc, id asc`,
		merchantID,
		currency,
		bin,
	).Scan(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) FindBin(ctx context.Context, db *gorm.DB, bin string) (*domain.BinInfo, error) {
	var info domain.BinInfo
	err := db.WithContext(ctx).Raw(
		`SELECT bin, bank, scheme, card_type, country FROM bin_database WHERE bin = ?`,
		bin,
	).Scan(&info).Error
	if err != nil {
		return nil, err
	}
	if info.Bin == "" {
		return nil, nil
	}
	return &info, nil
}
