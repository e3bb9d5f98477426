package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/data"
	"github.com/quantra/tradecore/internal/domain"
)

const (
	bybitWSPingInterval    = 20 * time.Second
	bybitWSReadTimeout     = 60 * time.Second
	bybitWSReconnectDelay  = 5 * time.Second
	bybitWSOrderBookLevels = 50
)

// bybitIntervalToTF reverses bybitIntervals for kline topic parsing.
var bybitIntervalToTF = func() map[string]domain.TimeFrame {
	out := make(map[string]domain.TimeFrame, len(bybitIntervals))
	for tf, interval := range bybitIntervals {
		out[interval] = tf
	}
	return out
}()

// BybitWebsocket bridges the Bybit v5 public stream into the channel
// registry. It implements domain.WebsocketExchange; each handled feed
// replaces the matching REST updater.
type BybitWebsocket struct {
	url          string
	exchangeName string
	registry     *channels.Registry
	cryptoOf     func(string) string
	timeFrames   []domain.TimeFrame
	coalescer    *wsCoalescer
	logger       *zap.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	topics     map[string]bool
	coreSymbol map[string]string
	books      map[string]*domain.OrderBook
	symbols    *data.SymbolDataStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBybitWebsocket builds the bridge. throttle coalesces updates per
// symbol and channel; zero publishes every message immediately.
func NewBybitWebsocket(url, exchangeName string, registry *channels.Registry, cryptoOf func(string) string, timeFrames []domain.TimeFrame, throttle time.Duration, logger *zap.Logger) *BybitWebsocket {
	if url == "" {
		url = BybitWSURL
	}
	return &BybitWebsocket{
		url:          url,
		exchangeName: exchangeName,
		registry:     registry,
		cryptoOf:     cryptoOf,
		timeFrames:   timeFrames,
		coalescer:    newWSCoalescer(registry, exchangeName, throttle),
		logger:       logger.With(zap.String("exchange", exchangeName), zap.String("transport", "ws")),
		topics:       make(map[string]bool),
		coreSymbol:   make(map[string]string),
		books:        make(map[string]*domain.OrderBook),
	}
}

// BindSymbols attaches the engine's symbol stores. Handled feeds write
// into the store before fanning out, exactly like their REST updaters,
// so consumers reading the store after an event see the same data.
func (w *BybitWebsocket) BindSymbols(symbols *data.SymbolDataStore) {
	w.mu.Lock()
	w.symbols = symbols
	w.mu.Unlock()
}

func (w *BybitWebsocket) symbolStore(symbol string) *data.SymbolStore {
	w.mu.Lock()
	symbols := w.symbols
	w.mu.Unlock()
	if symbols == nil {
		return nil
	}
	return symbols.Symbol(symbol)
}

func (w *BybitWebsocket) SupportedFeeds() []domain.WebsocketFeed {
	return []domain.WebsocketFeed{
		domain.FeedTicker,
		domain.FeedRecentTrades,
		domain.FeedOrderBook,
		domain.FeedKline,
	}
}

// Subscribe connects on first use and registers the feed's topics for the
// given symbols.
func (w *BybitWebsocket) Subscribe(feed domain.WebsocketFeed, symbols []string) error {
	topics := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		venue := venueSymbol(symbol)
		w.mu.Lock()
		w.coreSymbol[venue] = symbol
		w.mu.Unlock()
		switch feed {
		case domain.FeedTicker:
			topics = append(topics, "tickers."+venue)
		case domain.FeedRecentTrades:
			topics = append(topics, "publicTrade."+venue)
		case domain.FeedOrderBook:
			topics = append(topics, fmt.Sprintf("orderbook.%d.%s", bybitWSOrderBookLevels, venue))
		case domain.FeedKline:
			for _, tf := range w.timeFrames {
				interval, ok := bybitIntervals[tf]
				if !ok {
					continue
				}
				topics = append(topics, fmt.Sprintf("kline.%s.%s", interval, venue))
			}
		default:
			return fmt.Errorf("%w: feed %s", domain.ErrNotSupported, feed)
		}
	}
	if len(topics) == 0 {
		return nil
	}
	if err := w.ensureConnected(); err != nil {
		return err
	}
	return w.subscribeTopics(topics)
}

func (w *BybitWebsocket) ensureConnected() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return nil
	}
	conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
	if err != nil {
		return fmt.Errorf("%w: ws dial: %v", domain.ErrExchangeNotAvailable, err)
	}
	w.conn = conn

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.coalescer.Start()
	go w.readLoop(ctx)
	go w.pingLoop(ctx)
	return nil
}

func (w *BybitWebsocket) subscribeTopics(topics []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	fresh := make([]string, 0, len(topics))
	for _, topic := range topics {
		if !w.topics[topic] {
			w.topics[topic] = true
			fresh = append(fresh, topic)
		}
	}
	if len(fresh) == 0 || w.conn == nil {
		return nil
	}
	msg := map[string]interface{}{"op": "subscribe", "args": fresh}
	if err := w.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: ws subscribe: %v", domain.ErrExchangeNotAvailable, err)
	}
	return nil
}

// Close tears the connection down and flushes the coalescer.
func (w *BybitWebsocket) Close() {
	w.mu.Lock()
	cancel := w.cancel
	conn := w.conn
	done := w.done
	w.conn = nil
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
	w.coalescer.Stop()
}

func (w *BybitWebsocket) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(bybitWSPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			conn := w.conn
			w.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				w.logger.Debug("ws ping failed", zap.Error(err))
			}
		}
	}
}

func (w *BybitWebsocket) readLoop(ctx context.Context) {
	defer close(w.done)
	for {
		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(bybitWSReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("ws read failed, reconnecting", zap.Error(err))
			if !w.reconnect(ctx) {
				return
			}
			continue
		}
		w.handleMessage(raw)
	}
}

// reconnect dials again and replays the subscription set. Returns false
// when the bridge is shutting down.
func (w *BybitWebsocket) reconnect(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(bybitWSReconnectDelay):
		}
		conn, _, err := websocket.DefaultDialer.Dial(w.url, nil)
		if err != nil {
			w.logger.Warn("ws redial failed", zap.Error(err))
			continue
		}
		w.mu.Lock()
		if w.conn != nil {
			w.conn.Close()
		}
		w.conn = conn
		topics := make([]string, 0, len(w.topics))
		for topic := range w.topics {
			topics = append(topics, topic)
		}
		// Order book state is stale after a reconnect; wait for fresh
		// snapshots before publishing deltas.
		w.books = make(map[string]*domain.OrderBook)
		w.mu.Unlock()
		if len(topics) > 0 {
			if err := conn.WriteJSON(map[string]interface{}{"op": "subscribe", "args": topics}); err != nil {
				w.logger.Warn("ws resubscribe failed", zap.Error(err))
				continue
			}
		}
		return true
	}
}

type bybitWSMessage struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

func (w *BybitWebsocket) handleMessage(raw []byte) {
	var msg bybitWSMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Topic == "" {
		return
	}
	parts := strings.Split(msg.Topic, ".")
	switch {
	case parts[0] == "tickers" && len(parts) == 2:
		w.handleTicker(parts[1], msg.Data)
	case parts[0] == "publicTrade" && len(parts) == 2:
		w.handleTrades(parts[1], msg.Data)
	case parts[0] == "orderbook" && len(parts) == 3:
		w.handleOrderBook(parts[2], msg.Type, msg.Data)
	case parts[0] == "kline" && len(parts) == 3:
		w.handleKline(parts[1], parts[2], msg.Data)
	}
}

func (w *BybitWebsocket) resolveSymbol(venue string) (string, string, bool) {
	w.mu.Lock()
	symbol, ok := w.coreSymbol[venue]
	w.mu.Unlock()
	if !ok {
		return "", "", false
	}
	return symbol, w.cryptoOf(symbol), true
}

func (w *BybitWebsocket) handleTicker(venue string, data json.RawMessage) {
	symbol, crypto, ok := w.resolveSymbol(venue)
	if !ok {
		return
	}
	var row bybitTickerRow
	if err := json.Unmarshal(data, &row); err != nil {
		return
	}
	ticker := domain.Ticker{
		Symbol:      symbol,
		Bid:         parseDecimal(row.Bid1Price),
		Ask:         parseDecimal(row.Ask1Price),
		Last:        parseDecimal(row.LastPrice),
		High:        parseDecimal(row.HighPrice24H),
		Low:         parseDecimal(row.LowPrice24H),
		BaseVolume:  parseDecimal(row.Volume24H),
		QuoteVolume: parseDecimal(row.Turnover24H),
		Timestamp:   time.Now(),
	}
	if ticker.Last.IsZero() {
		// Spot ticker deltas can omit lastPrice; nothing to publish then.
		return
	}
	if store := w.symbolStore(symbol); store != nil {
		store.Ticker.Update(ticker)
		store.MarkPrice.Set(ticker.Last)
	}
	w.coalescer.Offer(channels.TickerChannelName, symbol, channels.TickerEvent{
		Cryptocurrency: crypto,
		Symbol:         symbol,
		Ticker:         ticker,
	})
}

func (w *BybitWebsocket) handleTrades(venue string, data json.RawMessage) {
	symbol, crypto, ok := w.resolveSymbol(venue)
	if !ok {
		return
	}
	var rows []struct {
		ExecID string `json:"i"`
		Side   string `json:"S"`
		Size   string `json:"v"`
		Price  string `json:"p"`
		Time   int64  `json:"T"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return
	}
	trades := make([]domain.PublicTrade, 0, len(rows))
	for _, row := range rows {
		trades = append(trades, domain.PublicTrade{
			ID:     row.ExecID,
			Symbol: symbol,
			Side:   strings.ToLower(row.Side),
			Size:   parseDecimal(row.Size),
			Price:  parseDecimal(row.Price),
			Time:   time.UnixMilli(row.Time),
		})
	}
	if len(trades) == 0 {
		return
	}
	if store := w.symbolStore(symbol); store != nil {
		// The store dedups by trade id; only unseen trades fan out.
		trades = store.RecentTrades.Add(trades)
		if len(trades) == 0 {
			return
		}
	}
	w.coalescer.Offer(channels.RecentTradesChannelName, symbol, channels.RecentTradesEvent{
		Cryptocurrency: crypto,
		Symbol:         symbol,
		Trades:         trades,
	})
}

func (w *BybitWebsocket) handleOrderBook(venue, msgType string, data json.RawMessage) {
	symbol, crypto, ok := w.resolveSymbol(venue)
	if !ok {
		return
	}
	var payload struct {
		Asks [][]string `json:"a"`
		Bids [][]string `json:"b"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	w.mu.Lock()
	book := w.books[symbol]
	if msgType == "snapshot" || book == nil {
		if msgType != "snapshot" {
			// Delta before any snapshot; drop it.
			w.mu.Unlock()
			return
		}
		book = &domain.OrderBook{Symbol: symbol}
		w.books[symbol] = book
		for _, row := range payload.Asks {
			if len(row) >= 2 {
				book.Asks = append(book.Asks, domain.OrderBookEntry{Price: parseFloat(row[0]), Size: parseFloat(row[1])})
			}
		}
		for _, row := range payload.Bids {
			if len(row) >= 2 {
				book.Bids = append(book.Bids, domain.OrderBookEntry{Price: parseFloat(row[0]), Size: parseFloat(row[1])})
			}
		}
	} else {
		book.Asks = applyBookDelta(book.Asks, payload.Asks, true)
		book.Bids = applyBookDelta(book.Bids, payload.Bids, false)
	}
	asks := make([]domain.OrderBookEntry, len(book.Asks))
	copy(asks, book.Asks)
	bids := make([]domain.OrderBookEntry, len(book.Bids))
	copy(bids, book.Bids)
	w.mu.Unlock()

	if store := w.symbolStore(symbol); store != nil {
		store.OrderBook.Update(asks, bids)
	}
	w.coalescer.Offer(channels.OrderBookChannelName, symbol, channels.OrderBookEvent{
		Cryptocurrency: crypto,
		Symbol:         symbol,
		Asks:           asks,
		Bids:           bids,
	})
}

// applyBookDelta merges one side of a v5 depth delta into the sorted
// level list. Zero-size rows delete the level.
func applyBookDelta(levels []domain.OrderBookEntry, rows [][]string, ascending bool) []domain.OrderBookEntry {
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price := parseFloat(row[0])
		size := parseFloat(row[1])
		idx := -1
		for i, lvl := range levels {
			if lvl.Price == price {
				idx = i
				break
			}
		}
		switch {
		case size == 0 && idx >= 0:
			levels = append(levels[:idx], levels[idx+1:]...)
		case idx >= 0:
			levels[idx].Size = size
		case size > 0:
			insert := len(levels)
			for i, lvl := range levels {
				if (ascending && price < lvl.Price) || (!ascending && price > lvl.Price) {
					insert = i
					break
				}
			}
			levels = append(levels, domain.OrderBookEntry{})
			copy(levels[insert+1:], levels[insert:])
			levels[insert] = domain.OrderBookEntry{Price: price, Size: size}
		}
	}
	return levels
}

func (w *BybitWebsocket) handleKline(interval, venue string, data json.RawMessage) {
	symbol, crypto, ok := w.resolveSymbol(venue)
	if !ok {
		return
	}
	tf, ok := bybitIntervalToTF[interval]
	if !ok {
		return
	}
	var rows []struct {
		Start   int64  `json:"start"`
		Open    string `json:"open"`
		High    string `json:"high"`
		Low     string `json:"low"`
		Close   string `json:"close"`
		Volume  string `json:"volume"`
		Confirm bool   `json:"confirm"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return
	}
	for _, row := range rows {
		candle := domain.Candle{
			Time:   row.Start / 1000,
			Open:   parseFloat(row.Open),
			High:   parseFloat(row.High),
			Low:    parseFloat(row.Low),
			Close:  parseFloat(row.Close),
			Volume: parseFloat(row.Volume),
		}
		w.coalescer.Offer(channels.KlineChannelName, symbol+"."+string(tf), channels.KlineEvent{
			Cryptocurrency: crypto,
			Symbol:         symbol,
			TimeFrame:      tf,
			Kline:          candle,
		})
		if row.Confirm {
			if store := w.symbolStore(symbol); store != nil {
				store.Candles(tf).Add(candle)
			}
			w.registry.GetOrCreate(w.exchangeName, channels.OHLCVChannelName).Publish(channels.OHLCVEvent{
				Cryptocurrency: crypto,
				Symbol:         symbol,
				TimeFrame:      tf,
				Candles:        []domain.Candle{candle},
			})
		}
	}
}
