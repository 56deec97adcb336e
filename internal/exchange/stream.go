package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/candle"
)

const (
	futuresStreamURL = "wss://fstream.binance.com/stream"

	streamReadTimeout  = 30 * time.Second
	streamPingInterval = 20 * time.Second

	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 60 * time.Second
)

// ConnectionState tracks the stream lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// CandleHandler receives each closed candle from the stream. A returned
// error is logged and never interrupts the stream.
type CandleHandler func(c candle.Candle) error

// combinedMessage is the envelope of the multiplexed stream endpoint.
type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineEvent struct {
	EventType string    `json:"e"`
	Symbol    string    `json:"s"`
	Kline     klineData `json:"k"`
}

type klineData struct {
	OpenTime  int64  `json:"t"`
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	IsClosed  bool   `json:"x"`
}

// KlineStream subscribes to closed-candle kline events for a set of
// symbols and timeframes over a single multiplexed websocket. It
// reconnects with exponential backoff and only dispatches candles whose
// bar has closed.
type KlineStream struct {
	url        string
	symbols    []string
	timeframes []string
	handler    CandleHandler

	mu          sync.RWMutex
	conn        *websocket.Conn
	state       ConnectionState
	lastMessage time.Time

	done chan struct{}
	wg   sync.WaitGroup
}

// NewKlineStream builds a stream for every symbol x timeframe pair.
func NewKlineStream(symbols, timeframes []string, handler CandleHandler) *KlineStream {
	return &KlineStream{
		url:        futuresStreamURL,
		symbols:    symbols,
		timeframes: timeframes,
		handler:    handler,
		state:      StateDisconnected,
		done:       make(chan struct{}),
	}
}

// streamNames builds the subscription list, e.g. btcusdt@kline_15m.
func (s *KlineStream) streamNames() []string {
	names := make([]string, 0, len(s.symbols)*len(s.timeframes))
	for _, sym := range s.symbols {
		for _, tf := range s.timeframes {
			names = append(names, fmt.Sprintf("%s@kline_%s", strings.ToLower(sym), tf))
		}
	}
	return names
}

// Start launches the stream in a background goroutine. It returns once
// the goroutine is running; connection failures are retried internally
// until Stop is called or ctx is cancelled.
func (s *KlineStream) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		retryDelay := reconnectBaseDelay
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			default:
			}

			if err := s.connectAndStream(ctx); err != nil {
				s.setState(StateReconnecting)
				log.Printf("Stream | Connection lost, reconnecting in %v: %v", retryDelay, err)
				select {
				case <-ctx.Done():
					return
				case <-s.done:
					return
				case <-time.After(retryDelay):
				}
				retryDelay *= 2
				if retryDelay > reconnectMaxDelay {
					retryDelay = reconnectMaxDelay
				}
				continue
			}
			// Clean return means Stop was called.
			return
		}
	}()
}

// connectAndStream dials the endpoint and pumps messages until the
// connection drops or the stream is stopped.
func (s *KlineStream) connectAndStream(ctx context.Context) error {
	url := fmt.Sprintf("%s?streams=%s", s.url, strings.Join(s.streamNames(), "/"))
	s.setState(StateConnecting)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.lastMessage = time.Now()
	s.mu.Unlock()
	log.Printf("Stream | Connected, %d subscriptions", len(s.streamNames()))

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				s.mu.RLock()
				c := s.conn
				s.mu.RUnlock()
				if c == nil {
					return
				}
				if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			return fmt.Errorf("read failed: %w", err)
		}

		s.mu.Lock()
		s.lastMessage = time.Now()
		s.mu.Unlock()
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

		s.handleMessage(raw)
	}
}

// handleMessage parses a combined stream payload and dispatches closed
// candles. Malformed messages are logged and dropped.
func (s *KlineStream) handleMessage(raw []byte) {
	var msg combinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("Stream | Dropping malformed message: %v", err)
		return
	}
	if !strings.Contains(msg.Stream, "@kline_") {
		return
	}

	var event klineEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Printf("Stream | Dropping malformed kline event: %v", err)
		return
	}
	if !event.Kline.IsClosed {
		return
	}

	c, err := parseStreamKline(event.Kline)
	if err != nil {
		log.Printf("Stream | Dropping invalid candle for %s %s: %v",
			event.Kline.Symbol, event.Kline.Interval, err)
		return
	}

	if s.handler != nil {
		if err := s.handler(c); err != nil {
			log.Printf("Stream | Handler error for %s %s: %v", c.Symbol, c.Timeframe, err)
		}
	}
}

func parseStreamKline(k klineData) (candle.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("failed to parse open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("failed to parse high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("failed to parse low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("failed to parse close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("failed to parse volume: %w", err)
	}

	c := candle.Candle{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Symbol:    k.Symbol,
		Timeframe: k.Interval,
	}
	if err := c.Validate(); err != nil {
		return candle.Candle{}, err
	}
	return c, nil
}

// LastMessageTime returns when the stream last received any message.
// Zero before the first connect.
func (s *KlineStream) LastMessageTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMessage
}

func (s *KlineStream) State() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *KlineStream) setState(state ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Stop closes the connection and waits for the pump goroutine to exit.
// Safe to call more than once.
func (s *KlineStream) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.state = StateDisconnected
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("Stream | Stopped")
}
