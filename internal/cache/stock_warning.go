package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dujiao-next/bookshop/internal/logger"
)

// StockWarning 低库存提醒（推送给正在浏览商品页的客户端）
type StockWarning struct {
	ProductID uint   `json:"product_id"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
	Message   string `json:"message"`
}

func stockWarningChannel(productID uint) string {
	return buildKey(fmt.Sprintf("stock:warning:%d", productID))
}

var localWarnings = &warningHub{subs: make(map[uint]map[chan StockWarning]struct{})}

type warningHub struct {
	mu   sync.Mutex
	subs map[uint]map[chan StockWarning]struct{}
}

func (h *warningHub) subscribe(productID uint) (chan StockWarning, func()) {
	ch := make(chan StockWarning, 8)
	h.mu.Lock()
	if h.subs[productID] == nil {
		h.subs[productID] = make(map[chan StockWarning]struct{})
	}
	h.subs[productID][ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[productID], ch)
			if len(h.subs[productID]) == 0 {
				delete(h.subs, productID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *warningHub) publish(warning StockWarning) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[warning.ProductID] {
		select {
		case ch <- warning:
		default:
		}
	}
}

// PublishStockWarning 发布低库存提醒
func PublishStockWarning(ctx context.Context, warning StockWarning) error {
	if !Enabled() {
		localWarnings.publish(warning)
		return nil
	}
	payload, err := json.Marshal(warning)
	if err != nil {
		return err
	}
	return redisClient.Publish(ctx, stockWarningChannel(warning.ProductID), payload).Err()
}

// SubscribeStockWarnings 订阅商品低库存提醒，返回的 cancel 必须调用
func SubscribeStockWarnings(ctx context.Context, productID uint) (<-chan StockWarning, func()) {
	if !Enabled() {
		ch, cancel := localWarnings.subscribe(productID)
		return ch, cancel
	}
	pubsub := redisClient.Subscribe(ctx, stockWarningChannel(productID))
	out := make(chan StockWarning, 8)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var warning StockWarning
				if err := json.Unmarshal([]byte(msg.Payload), &warning); err != nil {
					logger.Warnw("stock_warning_decode_failed", "product_id", productID, "error", err)
					continue
				}
				select {
				case out <- warning:
				default:
				}
			}
		}
	}()
	return out, cancel
}
