package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"cylinder-recon/internal/repository"
	"cylinder-recon/internal/scan"
	"cylinder-recon/internal/verification"
	"cylinder-recon/pkg/logger"
)

const assetTTL = 15 * time.Minute

// AssetCache is a read-through cache over the bottle list. Product-code
// lookups go through Redis when a client is configured; a nil client degrades
// to plain database reads, so the service runs without Redis.
type AssetCache struct {
	rdb     *redis.Client
	custody repository.CustodyRepository
}

func NewAssetCache(rdb *redis.Client, custody repository.CustodyRepository) *AssetCache {
	return &AssetCache{rdb: rdb, custody: custody}
}

// Resolver loads the organization's bottle list once and returns a resolver
// bound to it. Quantity reconciliation does many lookups per record, so the
// per-request snapshot avoids a query per scan.
func (c *AssetCache) Resolver(ctx context.Context, orgID string) (verification.AssetResolver, error) {
	bottles, err := c.custody.ListBottles(ctx, orgID)
	if err != nil {
		return nil, err
	}

	r := &orgResolver{
		cache:     c,
		ctx:       ctx,
		orgID:     orgID,
		byBarcode: make(map[string]verification.AssetInfo, len(bottles)),
		byProduct: make(map[string]verification.AssetInfo),
	}
	for _, b := range bottles {
		info := verification.AssetInfo{
			ProductCode: b.ProductCode,
			Description: b.Description,
			Category:    b.Category,
			Group:       b.Group,
			Type:        b.Type,
		}
		r.byBarcode[scan.CanonicalBarcode(b.Barcode)] = info
		if b.ProductCode != "" {
			if _, seen := r.byProduct[b.ProductCode]; !seen {
				r.byProduct[b.ProductCode] = info
			}
		}
	}
	return r, nil
}

// Invalidate drops the cached product entry after a bottle write
func (c *AssetCache) Invalidate(ctx context.Context, orgID, productCode string) {
	if c.rdb == nil || productCode == "" {
		return
	}
	if err := c.rdb.Del(ctx, productKey(orgID, productCode)).Err(); err != nil {
		logger.GetLogger().WithError(err).WithField("product_code", productCode).Warn("Failed to invalidate asset cache entry")
	}
}

func productKey(orgID, code string) string {
	return "asset:product:" + orgID + ":" + code
}

type orgResolver struct {
	cache     *AssetCache
	ctx       context.Context
	orgID     string
	byBarcode map[string]verification.AssetInfo
	byProduct map[string]verification.AssetInfo
}

func (r *orgResolver) ByBarcode(barcode string) (verification.AssetInfo, bool) {
	info, ok := r.byBarcode[scan.CanonicalBarcode(barcode)]
	return info, ok
}

func (r *orgResolver) ByProductCode(code string) (verification.AssetInfo, bool) {
	if code == "" {
		return verification.AssetInfo{}, false
	}

	if rdb := r.cache.rdb; rdb != nil {
		raw, err := rdb.Get(r.ctx, productKey(r.orgID, code)).Result()
		if err == nil {
			var info verification.AssetInfo
			if json.Unmarshal([]byte(raw), &info) == nil {
				return info, true
			}
		} else if err != redis.Nil {
			logger.GetLogger().WithError(err).WithField("product_code", code).Warn("Asset cache read failed")
		}
	}

	info, ok := r.byProduct[code]
	if !ok {
		return verification.AssetInfo{}, false
	}

	if rdb := r.cache.rdb; rdb != nil {
		if payload, err := json.Marshal(info); err == nil {
			if err := rdb.Set(r.ctx, productKey(r.orgID, code), payload, assetTTL).Err(); err != nil {
				logger.GetLogger().WithError(err).Warn("Asset cache write failed")
			}
		}
	}
	return info, true
}
