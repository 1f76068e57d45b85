package models

import "net/http"

// Response is the envelope returned by every vendor operation.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorResponse is the envelope returned when an operation fails before a
// vendor result exists. It doubles as the huma error model.
type ErrorResponse struct {
	Status  int    `json:"-"`
	Success bool   `json:"success"`
	Message string `json:"error"`
}

// NewErrorResponse creates an error envelope for the given HTTP status.
func NewErrorResponse(status int, msg string) *ErrorResponse {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &ErrorResponse{Status: status, Message: msg}
}

// Error implements error.
func (e *ErrorResponse) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *ErrorResponse) GetStatus() int {
	return e.Status
}

// Item is one menu or option normalized across vendors. Raw keeps the
// vendor record so callers can send it back in update requests.
type Item struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    string         `json:"status,omitempty"`
	GroupID   string         `json:"groupId,omitempty"`
	GroupName string         `json:"groupName,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

// ShopInfo identifies the storefront an account manages.
type ShopInfo struct {
	ShopID  string         `json:"shopId"`
	OwnerID string         `json:"ownerId,omitempty"`
	Name    string         `json:"name,omitempty"`
	Raw     map[string]any `json:"raw,omitempty"`
}

// Catalog is the full menu and option listing of a shop.
type Catalog struct {
	MenuList   []Item `json:"menuList"`
	OptionList []Item `json:"optionList"`
}

// Overview is returned by get-shop-info.
type Overview struct {
	ShopInfo *ShopInfo `json:"shopInfo"`
	MenuList *Catalog  `json:"menuList"`
}

// ItemResult is the outcome of a single item update on vendors that change
// one item per call.
type ItemResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Raw     any    `json:"raw,omitempty"`
}

// UpdateResult is the outcome of one sub-operation (menus or options).
type UpdateResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Items   []ItemResult `json:"items,omitempty"`
	Raw     any          `json:"raw,omitempty"`
}

// Failed counts failed items, or one when a batch call failed as a whole.
func (r UpdateResult) Failed() int {
	if len(r.Items) == 0 {
		if r.Success {
			return 0
		}
		return 1
	}
	n := 0
	for _, it := range r.Items {
		if !it.Success {
			n++
		}
	}
	return n
}

// BatchResult aggregates the menu and option sub-operations of soldout and
// active.
type BatchResult struct {
	Success   bool         `json:"success"`
	FailCount int          `json:"failCount"`
	Menus     UpdateResult `json:"menus"`
	Options   UpdateResult `json:"options"`
}

// NewBatchResult combines both sub-operations; success requires both.
func NewBatchResult(menus, options UpdateResult) *BatchResult {
	return &BatchResult{
		Success:   menus.Success && options.Success,
		FailCount: menus.Failed() + options.Failed(),
		Menus:     menus,
		Options:   options,
	}
}

// StopResult is the outcome of temporary-stop and release-stop.
type StopResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Raw     any    `json:"raw,omitempty"`
}
