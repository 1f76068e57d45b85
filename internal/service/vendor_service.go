// Package service orchestrates the vendor cache and adapters for the HTTP
// handlers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/side-api/internal/cache"
	"github.com/jmylchreest/side-api/internal/models"
	"github.com/jmylchreest/side-api/internal/vendor"
)

// CacheKeys are the keys get-shop-info needs; when all are valid the
// request is served without logging in.
var CacheKeys = []string{cache.KeyShopInfo, cache.KeyMenuList}

// catalogParams is what the menuList fetcher needs.
type catalogParams struct {
	client vendor.Client
	shop   *models.ShopInfo
}

// VendorService runs one vendor's operations.
type VendorService struct {
	adapter vendor.Adapter
	cache   *cache.Cache
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewVendorService creates a service for adapter and registers its fetch
// functions with c.
func NewVendorService(adapter vendor.Adapter, c *cache.Cache, requestTimeout time.Duration, logger *slog.Logger) *VendorService {
	s := &VendorService{
		adapter: adapter,
		cache:   c,
		timeout: requestTimeout,
		logger:  logger.With("vendor", adapter.Name()),
		now:     time.Now,
	}

	c.Register(adapter.Name(), cache.KeyShopInfo, func(ctx context.Context, params any) (any, error) {
		client, ok := params.(vendor.Client)
		if !ok {
			return nil, fmt.Errorf("shopInfo fetch: unexpected params %T", params)
		}
		shop, err := adapter.ShopInfo(ctx, client)
		if err != nil || shop == nil {
			return nil, err
		}
		return shop, nil
	})
	c.Register(adapter.Name(), cache.KeyMenuList, func(ctx context.Context, params any) (any, error) {
		p, ok := params.(catalogParams)
		if !ok {
			return nil, fmt.Errorf("menuList fetch: unexpected params %T", params)
		}
		catalog, err := adapter.Catalog(ctx, p.client, p.shop)
		if err != nil || catalog == nil {
			return nil, err
		}
		return catalog, nil
	})
	return s
}

// Name returns the vendor name.
func (s *VendorService) Name() string {
	return s.adapter.Name()
}

// Client returns a vendor client issuing requests with session's cookies
// and the vendor's headers.
func (s *VendorService) Client(session vendor.Session) vendor.Client {
	return vendor.NewPageClient(session, s.adapter.Headers, s.timeout)
}

// Cached reports whether get-shop-info can be answered from the cache.
func (s *VendorService) Cached() bool {
	return s.cache.Valid(s.adapter.Name(), CacheKeys...)
}

// InitCache drops the vendor's cached data.
func (s *VendorService) InitCache() {
	s.cache.Invalidate(s.adapter.Name())
}

// ShopInfo returns the cached shop, fetching it on a miss.
func (s *VendorService) ShopInfo(ctx context.Context, c vendor.Client) (*models.ShopInfo, error) {
	v, err := s.cache.Get(ctx, s.adapter.Name(), cache.KeyShopInfo, c)
	if err != nil {
		return nil, err
	}
	shop, ok := v.(*models.ShopInfo)
	if !ok || shop == nil {
		return nil, vendor.ErrShopNotFound
	}
	return shop, nil
}

// Overview returns the shop and its full catalog, both cached.
func (s *VendorService) Overview(ctx context.Context, c vendor.Client) (*models.Overview, error) {
	shop, err := s.ShopInfo(ctx, c)
	if err != nil {
		return nil, err
	}
	v, err := s.cache.Get(ctx, s.adapter.Name(), cache.KeyMenuList, catalogParams{client: c, shop: shop})
	if err != nil {
		return nil, err
	}
	catalog, _ := v.(*models.Catalog)
	if catalog == nil {
		catalog = &models.Catalog{MenuList: []models.Item{}, OptionList: []models.Item{}}
	}
	return &models.Overview{ShopInfo: shop, MenuList: catalog}, nil
}

// MenuList returns one page of menus, read live.
func (s *VendorService) MenuList(ctx context.Context, c vendor.Client, q vendor.ListQuery) ([]models.Item, error) {
	shop, err := s.ShopInfo(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.adapter.MenuList(ctx, c, shop, normalize(q))
}

// OptionList returns one page of options, read live.
func (s *VendorService) OptionList(ctx context.Context, c vendor.Client, q vendor.ListQuery) ([]models.Item, error) {
	shop, err := s.ShopInfo(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.adapter.OptionList(ctx, c, shop, normalize(q))
}

// Soldout marks the requested menus and options sold out.
func (s *VendorService) Soldout(ctx context.Context, c vendor.Client, req models.UpdateRequest) (*models.BatchResult, error) {
	shop, err := s.ShopInfo(ctx, c)
	if err != nil {
		return nil, err
	}
	res, err := s.adapter.Soldout(ctx, c, shop, req)
	if err != nil {
		return nil, err
	}
	s.logResult("soldout", req, res)
	return res, nil
}

// Active puts the requested menus and options back on sale.
func (s *VendorService) Active(ctx context.Context, c vendor.Client, req models.UpdateRequest) (*models.BatchResult, error) {
	shop, err := s.ShopInfo(ctx, c)
	if err != nil {
		return nil, err
	}
	res, err := s.adapter.Active(ctx, c, shop, req)
	if err != nil {
		return nil, err
	}
	s.logResult("active", req, res)
	return res, nil
}

// TemporaryStop validates the window before any vendor call and applies it.
func (s *VendorService) TemporaryStop(ctx context.Context, c vendor.Client, req models.StopRequest) (*models.StopResult, error) {
	w, err := vendor.ParseStopWindow(req.From, req.To, s.now())
	if err != nil {
		return nil, err
	}
	shop, err := s.ShopInfo(ctx, c)
	if err != nil {
		return nil, err
	}
	res, err := s.adapter.TemporaryStop(ctx, c, shop, w)
	if err != nil {
		return nil, err
	}
	s.logger.Info("temporary stop", "from", w.From, "to", w.To, "success", res.Success)
	return res, nil
}

// ReleaseStop reopens the shop.
func (s *VendorService) ReleaseStop(ctx context.Context, c vendor.Client) (*models.StopResult, error) {
	shop, err := s.ShopInfo(ctx, c)
	if err != nil {
		return nil, err
	}
	res, err := s.adapter.ReleaseStop(ctx, c, shop)
	if err != nil {
		return nil, err
	}
	s.logger.Info("temporary stop released", "success", res.Success)
	return res, nil
}

func (s *VendorService) logResult(op string, req models.UpdateRequest, res *models.BatchResult) {
	s.logger.Info("status update",
		"operation", op,
		"menus", len(req.MenuList),
		"options", len(req.OptionList),
		"success", res.Success,
		"failed", res.FailCount,
	)
}

// normalize applies the listing rule: a name filter always reads the first
// page.
func normalize(q vendor.ListQuery) vendor.ListQuery {
	if q.Name != "" || q.Page < 0 {
		q.Page = 0
	}
	return q
}
