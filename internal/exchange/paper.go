package exchange

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// paperPosition is a simulated position. Qty is signed.
type paperPosition struct {
	qty        float64
	entryPrice float64
}

// Paper simulates order execution at the caller-supplied mark price.
// It carries its own balance and position book so live runs can be
// rehearsed without touching a real account.
type Paper struct {
	mu        sync.Mutex
	balance   float64
	marks     map[string]float64
	positions map[string]*paperPosition
}

func NewPaper(initialBalance float64) *Paper {
	return &Paper{
		balance:   initialBalance,
		marks:     make(map[string]float64),
		positions: make(map[string]*paperPosition),
	}
}

func (p *Paper) Name() string { return "paper" }

func (p *Paper) Init(ctx context.Context) error { return nil }

func (p *Paper) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	log.Printf("Paper | Leverage %dx noted for %s", leverage, symbol)
	return nil
}

// SetMarkPrice records the price the next market order on symbol fills at.
func (p *Paper) SetMarkPrice(symbol string, price float64) {
	p.mu.Lock()
	p.marks[symbol] = price
	p.mu.Unlock()
}

// CreateMarketOrder fills instantly at the last mark price. Fails when
// no mark price has been observed for the symbol yet.
func (p *Paper) CreateMarketOrder(ctx context.Context, symbol string, side OrderSide, qty float64, reduceOnly bool) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %.8f", qty)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.marks[symbol]
	if !ok || price <= 0 {
		return fmt.Errorf("no mark price for %s", symbol)
	}

	signed := qty
	if side == OrderSideSell {
		signed = -qty
	}

	pos := p.positions[symbol]
	if pos == nil {
		if reduceOnly {
			return fmt.Errorf("reduce-only order on flat %s", symbol)
		}
		p.positions[symbol] = &paperPosition{qty: signed, entryPrice: price}
		log.Printf("Paper | Filled %s %s qty=%.8f at %.8f", side, symbol, qty, price)
		return nil
	}

	newQty := pos.qty + signed
	switch {
	case newQty == 0 || pos.qty*newQty < 0:
		// Position closed (or flipped; the flipped remainder is dropped,
		// matching reduce-only semantics).
		pnl := (price - pos.entryPrice) * pos.qty
		p.balance += pnl
		delete(p.positions, symbol)
		log.Printf("Paper | Closed %s at %.8f, pnl=%.4f, balance=%.4f", symbol, price, pnl, p.balance)
	case (pos.qty > 0) == (signed > 0):
		// Same direction: average the entry.
		pos.entryPrice = (pos.entryPrice*pos.qty + price*signed) / newQty
		pos.qty = newQty
		log.Printf("Paper | Increased %s to qty=%.8f at avg %.8f", symbol, pos.qty, pos.entryPrice)
	default:
		// Partial reduction realizes pnl on the reduced quantity.
		pnl := (price - pos.entryPrice) * -signed
		p.balance += pnl
		pos.qty = newQty
		log.Printf("Paper | Reduced %s to qty=%.8f, pnl=%.4f", symbol, pos.qty, pnl)
	}
	return nil
}

func (p *Paper) GetOpenPositions(ctx context.Context) ([]OpenPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var positions []OpenPosition
	for symbol, pos := range p.positions {
		positions = append(positions, OpenPosition{
			Symbol:     symbol,
			Qty:        pos.qty,
			EntryPrice: pos.entryPrice,
		})
	}
	return positions, nil
}

func (p *Paper) GetBalanceUSDT(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *Paper) Close() error { return nil }
