package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
	"github.com/paypr/backend/internal/repository"
)

// PlatformShareBps is the platform's slice in every built-in split. It mirrors
// the default platform fee rate; the fee itself is computed by money.FeeAndNet.
const PlatformShareBps int64 = 1000

// PublisherLookup reads the publisher config a split depends on.
type PublisherLookup interface {
	GetPublisher(ctx context.Context, id int64) (*models.Publisher, error)
}

type SplitResolver struct {
	publishers PublisherLookup
}

func NewSplitResolver(publishers PublisherLookup) *SplitResolver {
	return &SplitResolver{publishers: publishers}
}

// Resolve returns the role -> bps split for an article. The first matching
// rule wins:
//
//	custom override, independent, revenue_share, buyout, default
//
// The publisher is read on every call so changes to its author split take
// effect on the next purchase.
func (r *SplitResolver) Resolve(ctx context.Context, article *models.Article) (money.Rules, error) {
	if len(article.CustomSplits) > 0 {
		return copyRules(article.CustomSplits), nil
	}

	switch article.LicenseType {
	case models.LicenseIndependent:
		return money.Rules{money.RoleAuthor: 9000, money.RolePlatform: PlatformShareBps}, nil

	case models.LicenseRevenueShare:
		if article.PublisherID != nil {
			pub, err := r.publishers.GetPublisher(ctx, *article.PublisherID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("load publisher %d: %w", *article.PublisherID, err)
			}
			if pub != nil && pub.DefaultAuthorSplitBps != nil && *pub.DefaultAuthorSplitBps > 0 {
				author := *pub.DefaultAuthorSplitBps
				publisher := money.BasisPoints - author - PlatformShareBps
				if publisher < 0 {
					publisher = 0
				}
				return money.Rules{
					money.RoleAuthor:    author,
					money.RolePublisher: publisher,
					money.RolePlatform:  PlatformShareBps,
				}, nil
			}
		}
		return money.Rules{money.RoleAuthor: 6000, money.RolePublisher: 3000, money.RolePlatform: PlatformShareBps}, nil

	case models.LicenseBuyout:
		return money.Rules{money.RolePublisher: 9000, money.RolePlatform: PlatformShareBps}, nil
	}

	return money.Rules{money.RolePublisher: 9000, money.RolePlatform: PlatformShareBps}, nil
}

func copyRules(in money.Rules) money.Rules {
	out := make(money.Rules, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SplitPurchase books a purchase: the platform keeps exactly the fee and the
// net is allocated over every other role in rules. The result always sums to
// price.
func SplitPurchase(priceCents, feeBps int64, rules money.Rules) (feeCents, netCents int64, breakdown money.Breakdown) {
	feeCents, netCents = money.FeeAndNet(priceCents, feeBps)
	breakdown = money.Allocate(netCents, rules.Without(money.RolePlatform))
	breakdown[money.RolePlatform] += feeCents
	return feeCents, netCents, breakdown
}
