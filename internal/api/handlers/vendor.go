package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/side-api/internal/browser"
	"github.com/jmylchreest/side-api/internal/http/mw"
	"github.com/jmylchreest/side-api/internal/logging"
	"github.com/jmylchreest/side-api/internal/models"
	"github.com/jmylchreest/side-api/internal/service"
	"github.com/jmylchreest/side-api/internal/vendor"
)

// ShopNotFoundMessage is returned when the account has no shop.
const ShopNotFoundMessage = "Shop information not found"

// VendorHandler serves one vendor's operations under /{vendor}.
type VendorHandler struct {
	svc    *service.VendorService
	logger *slog.Logger
}

// NewVendorHandler creates a handler for svc.
func NewVendorHandler(svc *service.VendorService, logger *slog.Logger) *VendorHandler {
	return &VendorHandler{svc: svc, logger: logger}
}

// ResponseOutput is the {success, data} envelope.
type ResponseOutput struct {
	Body models.Response
}

// MenuListInput is the query of get-menu-list.
type MenuListInput struct {
	MenuName string `query:"menuName" doc:"Filter by menu name; the first page is returned when set"`
	Page     int    `query:"page" doc:"Zero based page"`
}

// OptionListInput is the query of get-option-list.
type OptionListInput struct {
	OptionName string `query:"optionName" doc:"Filter by option name; the first page is returned when set"`
	Page       int    `query:"page" doc:"Zero based page"`
}

// UpdateInput is the body of soldout and active.
type UpdateInput struct {
	Body models.UpdateRequest
}

// StopInput is the body of temporary-stop.
type StopInput struct {
	Body models.StopRequest `required:"false"`
}

func respond(success bool, data any) *ResponseOutput {
	return &ResponseOutput{Body: models.Response{Success: success, Data: data}}
}

// client builds the vendor client over the page loaned to this request.
func (h *VendorHandler) client(ctx context.Context) (vendor.Client, error) {
	hd, ok := browser.HandleFromContext(ctx)
	if !ok {
		return nil, huma.Error500InternalServerError("no browser page attached to request")
	}
	return h.svc.Client(hd.Page), nil
}

// fail maps service errors to HTTP errors.
func (h *VendorHandler) fail(ctx context.Context, op string, err error) error {
	var statusErr huma.StatusError
	switch {
	case errors.As(err, &statusErr):
		return err
	case errors.Is(err, vendor.ErrShopNotFound):
		return huma.Error404NotFound(ShopNotFoundMessage)
	case errors.Is(err, vendor.ErrInvalidStopWindow):
		return huma.Error400BadRequest(err.Error())
	}
	logging.FromContext(ctx, h.logger).Error("vendor operation failed", "operation", op, "error", err)
	return huma.Error500InternalServerError(err.Error())
}

// InitCache drops the vendor's cached shop and catalog.
func (h *VendorHandler) InitCache(ctx context.Context, input *struct{}) (*ResponseOutput, error) {
	h.svc.InitCache()
	return respond(true, displayName(h.svc.Name())+" cache initialized"), nil
}

// GetShopInfo returns the shop and its full catalog.
func (h *VendorHandler) GetShopInfo(ctx context.Context, input *struct{}) (*ResponseOutput, error) {
	c, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	ov, err := h.svc.Overview(ctx, c)
	if err != nil {
		return nil, h.fail(ctx, "get-shop-info", err)
	}
	return respond(true, ov), nil
}

// GetMenuList returns one page of menus.
func (h *VendorHandler) GetMenuList(ctx context.Context, input *MenuListInput) (*ResponseOutput, error) {
	c, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	items, err := h.svc.MenuList(ctx, c, vendor.ListQuery{Name: input.MenuName, Page: input.Page})
	if err != nil {
		return nil, h.fail(ctx, "get-menu-list", err)
	}
	return respond(true, items), nil
}

// GetOptionList returns one page of options.
func (h *VendorHandler) GetOptionList(ctx context.Context, input *OptionListInput) (*ResponseOutput, error) {
	c, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	items, err := h.svc.OptionList(ctx, c, vendor.ListQuery{Name: input.OptionName, Page: input.Page})
	if err != nil {
		return nil, h.fail(ctx, "get-option-list", err)
	}
	return respond(true, items), nil
}

// Soldout marks menus and options sold out.
func (h *VendorHandler) Soldout(ctx context.Context, input *UpdateInput) (*ResponseOutput, error) {
	c, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	res, err := h.svc.Soldout(ctx, c, input.Body)
	if err != nil {
		return nil, h.fail(ctx, "soldout", err)
	}
	return respond(res.Success, res), nil
}

// Active puts menus and options back on sale.
func (h *VendorHandler) Active(ctx context.Context, input *UpdateInput) (*ResponseOutput, error) {
	c, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	res, err := h.svc.Active(ctx, c, input.Body)
	if err != nil {
		return nil, h.fail(ctx, "active", err)
	}
	return respond(res.Success, res), nil
}

// TemporaryStop closes the shop for a window.
func (h *VendorHandler) TemporaryStop(ctx context.Context, input *StopInput) (*ResponseOutput, error) {
	c, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	res, err := h.svc.TemporaryStop(ctx, c, input.Body)
	if err != nil {
		return nil, h.fail(ctx, "temporary-stop", err)
	}
	return respond(res.Success, res), nil
}

// ReleaseStop reopens the shop.
func (h *VendorHandler) ReleaseStop(ctx context.Context, input *struct{}) (*ResponseOutput, error) {
	c, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	res, err := h.svc.ReleaseStop(ctx, c)
	if err != nil {
		return nil, h.fail(ctx, "release-stop", err)
	}
	return respond(res.Success, res), nil
}

// Register mounts the vendor's operations under /{vendor}. Every operation
// except initCache runs on a pooled page behind the vendor login.
func (h *VendorHandler) Register(api huma.API, pool *browser.Pool, auth mw.Authenticator) {
	name := h.svc.Name()
	prefix := "/" + name
	tags := []string{displayName(name)}

	page := mw.BrowserPage(api, pool, h.logger)
	login := func(cacheRoute bool) huma.Middlewares {
		return huma.Middlewares{page, mw.VendorLogin(api, auth, h.svc, cacheRoute, h.logger)}
	}

	huma.Register(api, huma.Operation{
		OperationID: name + "InitCache",
		Method:      http.MethodGet,
		Path:        prefix + "/initCache",
		Summary:     "Reset cache",
		Description: "Drops the cached shop info and menu list so the next read logs in and fetches again",
		Tags:        tags,
	}, h.InitCache)

	huma.Register(api, huma.Operation{
		OperationID: name + "GetShopInfo",
		Method:      http.MethodGet,
		Path:        prefix + "/get-shop-info",
		Summary:     "Shop info and catalog",
		Description: "Served from the cache without logging in while the cache is valid",
		Tags:        tags,
		Middlewares: login(true),
	}, h.GetShopInfo)

	huma.Register(api, huma.Operation{
		OperationID: name + "GetMenuList",
		Method:      http.MethodGet,
		Path:        prefix + "/get-menu-list",
		Summary:     "List menus",
		Tags:        tags,
		Middlewares: login(false),
	}, h.GetMenuList)

	huma.Register(api, huma.Operation{
		OperationID: name + "GetOptionList",
		Method:      http.MethodGet,
		Path:        prefix + "/get-option-list",
		Summary:     "List options",
		Tags:        tags,
		Middlewares: login(false),
	}, h.GetOptionList)

	huma.Register(api, huma.Operation{
		OperationID: name + "Soldout",
		Method:      http.MethodPost,
		Path:        prefix + "/soldout",
		Summary:     "Mark sold out",
		Tags:        tags,
		Middlewares: login(false),
	}, h.Soldout)

	huma.Register(api, huma.Operation{
		OperationID: name + "Active",
		Method:      http.MethodPost,
		Path:        prefix + "/active",
		Summary:     "Put back on sale",
		Tags:        tags,
		Middlewares: login(false),
	}, h.Active)

	huma.Register(api, huma.Operation{
		OperationID: name + "TemporaryStop",
		Method:      http.MethodPost,
		Path:        prefix + "/temporary-stop",
		Summary:     "Temporarily close the shop",
		Tags:        tags,
		Middlewares: login(false),
	}, h.TemporaryStop)

	huma.Register(api, huma.Operation{
		OperationID: name + "ReleaseStop",
		Method:      http.MethodPost,
		Path:        prefix + "/release-stop",
		Summary:     "Reopen the shop",
		Tags:        tags,
		Middlewares: login(false),
	}, h.ReleaseStop)
}

// displayName capitalizes a vendor name ("baemin" -> "Baemin").
func displayName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
