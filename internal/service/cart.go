package service

import (
	"strings"
	"time"

	"github.com/dujiao-next/bookshop/internal/models"
)

const (
	cartOwnerUserPrefix  = "user:"
	cartOwnerGuestPrefix = "guest:"
)

// CartOwner 购物车归属（已登录用户或游客令牌）
type CartOwner struct {
	UserID     string
	GuestToken string
}

// Key 返回购物车存储键
func (o CartOwner) Key() string {
	if userID := strings.TrimSpace(o.UserID); userID != "" {
		return cartOwnerUserPrefix + userID
	}
	if token := strings.TrimSpace(o.GuestToken); token != "" {
		return cartOwnerGuestPrefix + token
	}
	return ""
}

// Authenticated 是否为已登录用户
func (o CartOwner) Authenticated() bool {
	return strings.TrimSpace(o.UserID) != ""
}

// ParseCartOwnerKey 从存储键还原归属
func ParseCartOwnerKey(key string) (CartOwner, bool) {
	switch {
	case strings.HasPrefix(key, cartOwnerUserPrefix) && len(key) > len(cartOwnerUserPrefix):
		return CartOwner{UserID: strings.TrimPrefix(key, cartOwnerUserPrefix)}, true
	case strings.HasPrefix(key, cartOwnerGuestPrefix) && len(key) > len(cartOwnerGuestPrefix):
		return CartOwner{GuestToken: strings.TrimPrefix(key, cartOwnerGuestPrefix)}, true
	default:
		return CartOwner{}, false
	}
}

// CartLine 购物车行
type CartLine struct {
	LineID       string       `json:"line_id"`
	ProductID    uint         `json:"product_id"`
	VariantID    uint         `json:"variant_id,omitempty"`
	Quantity     int          `json:"quantity"`
	UnitPrice    models.Money `json:"unit_price"`
	Name         string       `json:"name"`
	VariantLabel string       `json:"variant_label,omitempty"`
	ImageURL     string       `json:"image_url,omitempty"`
	LineTotal    models.Money `json:"line_total"`
}

// Cart 购物车聚合（小计与件数每次由行重新计算）
type Cart struct {
	OwnerKey         string       `json:"owner_key"`
	Lines            []CartLine   `json:"lines"`
	Subtotal         models.Money `json:"subtotal"`
	ItemCount        int          `json:"item_count"`
	Currency         string       `json:"currency"`
	MirrorPending    bool         `json:"mirror_pending"`
	AppliedMutations []string     `json:"applied_mutations,omitempty"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Recalculate 重新计算小计与件数
func (c *Cart) Recalculate() {
	subtotal := models.Money{}
	count := 0
	for i := range c.Lines {
		c.Lines[i].LineTotal = c.Lines[i].UnitPrice.MulInt(c.Lines[i].Quantity)
		subtotal = subtotal.Add(c.Lines[i].LineTotal)
		count += c.Lines[i].Quantity
	}
	c.Subtotal = subtotal
	c.ItemCount = count
}

// IsEmpty 购物车是否为空
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

func (c *Cart) findLine(lineID string) int {
	for i := range c.Lines {
		if c.Lines[i].LineID == lineID {
			return i
		}
	}
	return -1
}

func (c *Cart) findProductLine(productID, variantID uint) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID && c.Lines[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(index int) {
	c.Lines = append(c.Lines[:index], c.Lines[index+1:]...)
}

func (c *Cart) hasApplied(mutationID string) bool {
	for _, id := range c.AppliedMutations {
		if id == mutationID {
			return true
		}
	}
	return false
}

func (c *Cart) recordApplied(mutationID string, limit int) {
	c.AppliedMutations = append(c.AppliedMutations, mutationID)
	if limit > 0 && len(c.AppliedMutations) > limit {
		c.AppliedMutations = append([]string(nil), c.AppliedMutations[len(c.AppliedMutations)-limit:]...)
	}
}

// Snapshot 深拷贝，下单时使用，避免后续修改影响订单
func (c *Cart) Snapshot() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Lines = append([]CartLine(nil), c.Lines...)
	clone.AppliedMutations = nil
	return &clone
}
