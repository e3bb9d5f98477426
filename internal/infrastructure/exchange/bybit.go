// Package exchange holds the venue adapters. The core consumes them
// through domain.Exchange / domain.WebsocketExchange and never speaks
// HTTP or WebSocket itself.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantra/tradecore/internal/domain"
)

const (
	BybitBaseURL        = "https://api.bybit.com"
	BybitTestnetBaseURL = "https://api-testnet.bybit.com"
	BybitWSURL          = "wss://stream.bybit.com/v5/public/spot"

	bybitRecvWindow = 5000
)

// bybitIntervals maps core time frames to Bybit v5 kline intervals.
var bybitIntervals = map[domain.TimeFrame]string{
	"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
	"1d": "D", "1w": "W", "1M": "M",
}

// BybitAdapter implements domain.Exchange against the Bybit v5 REST API.
type BybitAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	category  string
	client    *http.Client

	mu      sync.RWMutex
	markets map[string]*domain.Market
	// venueToCore reverses the symbol flattening ("BTCUSDT" -> "BTC/USDT").
	venueToCore map[string]string
	sandboxed   bool
}

// NewBybitAdapter builds a spot adapter; pass category "linear" for
// futures symbols.
func NewBybitAdapter(apiKey, apiSecret, baseURL, category string, timeout time.Duration) *BybitAdapter {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	if category == "" {
		category = "spot"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &BybitAdapter{
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		baseURL:     baseURL,
		category:    category,
		client:      &http.Client{Timeout: timeout},
		markets:     make(map[string]*domain.Market),
		venueToCore: make(map[string]string),
	}
}

// --- request plumbing ---

func (b *BybitAdapter) sign(params string, timestamp int64) string {
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, bybitRecvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

type bybitResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (b *BybitAdapter) sendRequest(ctx context.Context, method, path string, payload map[string]interface{}, signed bool) (json.RawMessage, error) {
	var body []byte
	var paramsStr string
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = jsonBody
		paramsStr = string(jsonBody)
	} else if method == http.MethodGet {
		if idx := strings.Index(path, "?"); idx != -1 {
			paramsStr = path[idx+1:]
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	if signed {
		timestamp := time.Now().UnixMilli()
		req.Header.Set("X-BAPI-API-KEY", b.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
		req.Header.Set("X-BAPI-SIGN", b.sign(paramsStr, timestamp))
		req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(bybitRecvWindow))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrExchangeNotAvailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: http %d", domain.ErrExchangeNotAvailable, resp.StatusCode)
	}

	var parsed bybitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if parsed.RetCode != 0 {
		return nil, classifyBybitError(parsed.RetCode, parsed.RetMsg)
	}
	return parsed.Result, nil
}

// classifyBybitError maps v5 retCodes onto the core's sentinel errors.
func classifyBybitError(code int, msg string) error {
	wrap := func(sentinel error) error {
		return fmt.Errorf("%w: bybit %d %s", sentinel, code, msg)
	}
	switch code {
	case 10001:
		return wrap(domain.ErrBadSymbol)
	case 10002:
		return wrap(domain.ErrInvalidNonce)
	case 10003, 10004, 10005, 33004:
		return wrap(domain.ErrAuthentication)
	case 10006, 10016, 10018:
		return wrap(domain.ErrExchangeNotAvailable)
	case 110001, 170213:
		return wrap(domain.ErrOrderNotFound)
	case 110007, 170131:
		return wrap(domain.ErrInsufficientFunds)
	case 10009:
		return wrap(domain.ErrRequestTimeout)
	default:
		return fmt.Errorf("bybit error %d: %s", code, msg)
	}
}

// --- symbol helpers ---

func venueSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

func (b *BybitAdapter) coreSymbol(venue string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.venueToCore[venue]; ok {
		return s
	}
	return venue
}

// --- market metadata ---

func (b *BybitAdapter) LoadMarkets(ctx context.Context) error {
	path := "/v5/market/instruments-info?category=" + b.category
	result, err := b.sendRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return err
	}
	var parsed struct {
		List []struct {
			Symbol        string `json:"symbol"`
			BaseCoin      string `json:"baseCoin"`
			QuoteCoin     string `json:"quoteCoin"`
			LotSizeFilter struct {
				MinOrderQty string `json:"minOrderQty"`
				MaxOrderQty string `json:"maxOrderQty"`
				MinOrderAmt string `json:"minOrderAmt"`
				MaxOrderAmt string `json:"maxOrderAmt"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return err
	}

	markets := make(map[string]*domain.Market, len(parsed.List))
	venueToCore := make(map[string]string, len(parsed.List))
	for _, row := range parsed.List {
		symbol := domain.MergeSymbol(row.BaseCoin, row.QuoteCoin)
		markets[symbol] = &domain.Market{
			Symbol: symbol,
			Base:   row.BaseCoin,
			Quote:  row.QuoteCoin,
			Limits: domain.MarketLimits{
				MinAmount: parseDecimal(row.LotSizeFilter.MinOrderQty),
				MaxAmount: parseDecimal(row.LotSizeFilter.MaxOrderQty),
				MinCost:   parseDecimal(row.LotSizeFilter.MinOrderAmt),
				MaxCost:   parseDecimal(row.LotSizeFilter.MaxOrderAmt),
			},
		}
		venueToCore[row.Symbol] = symbol
	}

	b.mu.Lock()
	b.markets = markets
	b.venueToCore = venueToCore
	b.mu.Unlock()
	return nil
}

func (b *BybitAdapter) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.markets))
	for s := range b.markets {
		out = append(out, s)
	}
	return out
}

func (b *BybitAdapter) TimeFrames() []domain.TimeFrame {
	out := make([]domain.TimeFrame, 0, len(bybitIntervals))
	for tf := range bybitIntervals {
		out = append(out, tf)
	}
	return out
}

func (b *BybitAdapter) Market(symbol string) (*domain.Market, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if m, ok := b.markets[symbol]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrBadSymbol, symbol)
}

// --- public data ---

func (b *BybitAdapter) FetchOHLCV(ctx context.Context, symbol string, tf domain.TimeFrame, limit int) ([]domain.Candle, error) {
	interval, ok := bybitIntervals[tf]
	if !ok {
		return nil, fmt.Errorf("%w: time frame %s", domain.ErrNotSupported, tf)
	}
	path := fmt.Sprintf("/v5/market/kline?category=%s&symbol=%s&interval=%s&limit=%d",
		b.category, venueSymbol(symbol), interval, limit)
	result, err := b.sendRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		List [][]string `json:"list"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	// Bybit returns newest first; the core wants oldest first.
	candles := make([]domain.Candle, 0, len(parsed.List))
	for i := len(parsed.List) - 1; i >= 0; i-- {
		row := parsed.List[i]
		if len(row) < 6 {
			continue
		}
		ts, _ := strconv.ParseInt(row[0], 10, 64)
		candles = append(candles, domain.Candle{
			Time:   ts / 1000,
			Open:   parseFloat(row[1]),
			High:   parseFloat(row[2]),
			Low:    parseFloat(row[3]),
			Close:  parseFloat(row[4]),
			Volume: parseFloat(row[5]),
		})
	}
	return candles, nil
}

func (b *BybitAdapter) FetchOrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBook, error) {
	if limit <= 0 {
		limit = 20
	}
	path := fmt.Sprintf("/v5/market/orderbook?category=%s&symbol=%s&limit=%d",
		b.category, venueSymbol(symbol), limit)
	result, err := b.sendRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Asks [][]string `json:"a"`
		Bids [][]string `json:"b"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	book := &domain.OrderBook{Symbol: symbol}
	for _, row := range parsed.Asks {
		if len(row) >= 2 {
			book.Asks = append(book.Asks, domain.OrderBookEntry{
				Price: parseFloat(row[0]),
				Size:  parseFloat(row[1]),
			})
		}
	}
	for _, row := range parsed.Bids {
		if len(row) >= 2 {
			book.Bids = append(book.Bids, domain.OrderBookEntry{
				Price: parseFloat(row[0]),
				Size:  parseFloat(row[1]),
			})
		}
	}
	return book, nil
}

type bybitTickerRow struct {
	Symbol       string `json:"symbol"`
	Bid1Price    string `json:"bid1Price"`
	Ask1Price    string `json:"ask1Price"`
	LastPrice    string `json:"lastPrice"`
	HighPrice24H string `json:"highPrice24h"`
	LowPrice24H  string `json:"lowPrice24h"`
	Volume24H    string `json:"volume24h"`
	Turnover24H  string `json:"turnover24h"`
	MarkPrice    string `json:"markPrice"`
	FundingRate  string `json:"fundingRate"`
	NextFundingT string `json:"nextFundingTime"`
}

func (b *BybitAdapter) fetchTickerRows(ctx context.Context, symbol string) ([]bybitTickerRow, error) {
	path := "/v5/market/tickers?category=" + b.category
	if symbol != "" {
		path += "&symbol=" + venueSymbol(symbol)
	}
	result, err := b.sendRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		List []bybitTickerRow `json:"list"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	return parsed.List, nil
}

func (b *BybitAdapter) tickerFromRow(row bybitTickerRow) domain.Ticker {
	return domain.Ticker{
		Symbol:      b.coreSymbol(row.Symbol),
		Bid:         parseDecimal(row.Bid1Price),
		Ask:         parseDecimal(row.Ask1Price),
		Last:        parseDecimal(row.LastPrice),
		High:        parseDecimal(row.HighPrice24H),
		Low:         parseDecimal(row.LowPrice24H),
		BaseVolume:  parseDecimal(row.Volume24H),
		QuoteVolume: parseDecimal(row.Turnover24H),
		Timestamp:   time.Now(),
	}
}

func (b *BybitAdapter) FetchTicker(ctx context.Context, symbol string) (*domain.Ticker, error) {
	rows, err := b.fetchTickerRows(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrBadSymbol, symbol)
	}
	ticker := b.tickerFromRow(rows[0])
	return &ticker, nil
}

func (b *BybitAdapter) FetchTickers(ctx context.Context, symbols []string) ([]domain.Ticker, error) {
	rows, err := b.fetchTickerRows(ctx, "")
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}
	out := make([]domain.Ticker, 0, len(symbols))
	for _, row := range rows {
		ticker := b.tickerFromRow(row)
		if len(symbols) == 0 || wanted[ticker.Symbol] {
			out = append(out, ticker)
		}
	}
	return out, nil
}

func (b *BybitAdapter) FetchTrades(ctx context.Context, symbol string, limit int) ([]domain.PublicTrade, error) {
	if limit <= 0 {
		limit = 50
	}
	path := fmt.Sprintf("/v5/market/recent-trade?category=%s&symbol=%s&limit=%d",
		b.category, venueSymbol(symbol), limit)
	result, err := b.sendRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		List []struct {
			ExecID string `json:"execId"`
			Side   string `json:"side"`
			Size   string `json:"size"`
			Price  string `json:"price"`
			Time   string `json:"time"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	trades := make([]domain.PublicTrade, 0, len(parsed.List))
	for i := len(parsed.List) - 1; i >= 0; i-- {
		row := parsed.List[i]
		ms, _ := strconv.ParseInt(row.Time, 10, 64)
		trades = append(trades, domain.PublicTrade{
			ID:     row.ExecID,
			Symbol: symbol,
			Side:   strings.ToLower(row.Side),
			Size:   parseDecimal(row.Size),
			Price:  parseDecimal(row.Price),
			Time:   time.UnixMilli(ms),
		})
	}
	return trades, nil
}

// --- private data ---

func (b *BybitAdapter) FetchBalance(ctx context.Context) (map[string]domain.Balance, error) {
	accountType := "UNIFIED"
	path := "/v5/account/wallet-balance?accountType=" + accountType
	result, err := b.sendRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		List []struct {
			Coin []struct {
				Coin            string `json:"coin"`
				WalletBalance   string `json:"walletBalance"`
				Locked          string `json:"locked"`
				AvailableToSell string `json:"availableToWithdraw"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	balance := make(map[string]domain.Balance)
	for _, account := range parsed.List {
		for _, coin := range account.Coin {
			total := parseDecimal(coin.WalletBalance)
			locked := parseDecimal(coin.Locked)
			balance[coin.Coin] = domain.Balance{
				Free:  total.Sub(locked),
				Used:  locked,
				Total: total,
			}
		}
	}
	return balance, nil
}

func (b *BybitAdapter) FetchMyTrades(ctx context.Context, symbol string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	path := fmt.Sprintf("/v5/execution/list?category=%s&symbol=%s&limit=%d",
		b.category, venueSymbol(symbol), limit)
	result, err := b.sendRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		List []struct {
			ExecID    string `json:"execId"`
			OrderID   string `json:"orderId"`
			Side      string `json:"side"`
			OrderType string `json:"orderType"`
			ExecPrice string `json:"execPrice"`
			ExecQty   string `json:"execQty"`
			ExecValue string `json:"execValue"`
			ExecFee   string `json:"execFee"`
			FeeCoin   string `json:"feeCurrency"`
			ExecTime  string `json:"execTime"`
			IsMaker   bool   `json:"isMaker"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	trades := make([]domain.Trade, 0, len(parsed.List))
	for _, row := range parsed.List {
		side := domain.SideBuy
		if strings.EqualFold(row.Side, "Sell") {
			side = domain.SideSell
		}
		kind, err := domain.ParseOrderType(strings.ToLower(row.OrderType), side)
		if err != nil {
			kind = domain.UnknownOrderType
		}
		takerOrMaker := domain.Taker
		if row.IsMaker {
			takerOrMaker = domain.Maker
		}
		ms, _ := strconv.ParseInt(row.ExecTime, 10, 64)
		trade := domain.Trade{
			TradeID:      row.ExecID,
			OrderID:      row.OrderID,
			Symbol:       symbol,
			Side:         side,
			Type:         kind,
			Price:        parseDecimal(row.ExecPrice),
			Quantity:     parseDecimal(row.ExecQty),
			Cost:         parseDecimal(row.ExecValue),
			Time:         time.UnixMilli(ms),
			TakerOrMaker: takerOrMaker,
			CloseStatus:  domain.StatusFilled,
		}
		if fee := parseDecimal(row.ExecFee); !fee.IsZero() {
			trade.Fee = &domain.Fee{Currency: row.FeeCoin, Cost: fee}
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

type bybitOrderRow struct {
	OrderID      string `json:"orderId"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	OrderType    string `json:"orderType"`
	OrderStatus  string `json:"orderStatus"`
	Price        string `json:"price"`
	TriggerPrice string `json:"triggerPrice"`
	Qty          string `json:"qty"`
	CumExecQty   string `json:"cumExecQty"`
	CumExecValue string `json:"cumExecValue"`
	CumExecFee   string `json:"cumExecFee"`
	CreatedTime  string `json:"createdTime"`
}

func (b *BybitAdapter) rawOrderFromRow(row bybitOrderRow) domain.RawOrder {
	side := domain.SideBuy
	if strings.EqualFold(row.Side, "Sell") {
		side = domain.SideSell
	}
	ms, _ := strconv.ParseInt(row.CreatedTime, 10, 64)
	return domain.RawOrder{
		ID:        row.OrderID,
		Symbol:    b.coreSymbol(row.Symbol),
		Side:      side,
		Type:      strings.ToLower(row.OrderType),
		Status:    row.OrderStatus,
		Price:     parseDecimal(row.Price),
		StopPrice: parseDecimal(row.TriggerPrice),
		Quantity:  parseDecimal(row.Qty),
		Filled:    parseDecimal(row.CumExecQty),
		Cost:      parseDecimal(row.CumExecValue),
		FeeCost:   parseDecimal(row.CumExecFee),
		Timestamp: time.UnixMilli(ms),
	}
}

func (b *BybitAdapter) fetchOrderRows(ctx context.Context, path string) ([]domain.RawOrder, error) {
	result, err := b.sendRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		List []bybitOrderRow `json:"list"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	orders := make([]domain.RawOrder, 0, len(parsed.List))
	for _, row := range parsed.List {
		orders = append(orders, b.rawOrderFromRow(row))
	}
	return orders, nil
}

func (b *BybitAdapter) FetchOrder(ctx context.Context, id, symbol string) (*domain.RawOrder, error) {
	path := fmt.Sprintf("/v5/order/realtime?category=%s&symbol=%s&orderId=%s",
		b.category, venueSymbol(symbol), id)
	orders, err := b.fetchOrderRows(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		// Fall back to history: realtime only lists live orders.
		path = fmt.Sprintf("/v5/order/history?category=%s&symbol=%s&orderId=%s",
			b.category, venueSymbol(symbol), id)
		if orders, err = b.fetchOrderRows(ctx, path); err != nil {
			return nil, err
		}
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, id)
	}
	return &orders[0], nil
}

func (b *BybitAdapter) FetchOpenOrders(ctx context.Context, symbol string) ([]domain.RawOrder, error) {
	path := fmt.Sprintf("/v5/order/realtime?category=%s&symbol=%s",
		b.category, venueSymbol(symbol))
	return b.fetchOrderRows(ctx, path)
}

func (b *BybitAdapter) FetchClosedOrders(ctx context.Context, symbol string, limit int) ([]domain.RawOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	path := fmt.Sprintf("/v5/order/history?category=%s&symbol=%s&limit=%d",
		b.category, venueSymbol(symbol), limit)
	return b.fetchOrderRows(ctx, path)
}

// --- trading ---

func (b *BybitAdapter) createOrder(ctx context.Context, symbol string, side domain.OrderSide, orderType string, quantity, price decimal.Decimal) (*domain.RawOrder, error) {
	venueSide := "Buy"
	if side == domain.SideSell {
		venueSide = "Sell"
	}
	payload := map[string]interface{}{
		"category":  b.category,
		"symbol":    venueSymbol(symbol),
		"side":      venueSide,
		"orderType": orderType,
		"qty":       quantity.String(),
	}
	if orderType == "Limit" {
		payload["price"] = price.String()
		payload["timeInForce"] = "GTC"
	}
	result, err := b.sendRequest(ctx, http.MethodPost, "/v5/order/create", payload, true)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	return &domain.RawOrder{
		ID:        parsed.OrderID,
		Symbol:    symbol,
		Side:      side,
		Type:      strings.ToLower(orderType),
		Status:    "New",
		Price:     price,
		Quantity:  quantity,
		Timestamp: time.Now(),
	}, nil
}

func (b *BybitAdapter) CreateMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity decimal.Decimal) (*domain.RawOrder, error) {
	return b.createOrder(ctx, symbol, side, "Market", quantity, decimal.Zero)
}

func (b *BybitAdapter) CreateLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price decimal.Decimal) (*domain.RawOrder, error) {
	return b.createOrder(ctx, symbol, side, "Limit", quantity, price)
}

func (b *BybitAdapter) CancelOrder(ctx context.Context, id, symbol string) error {
	payload := map[string]interface{}{
		"category": b.category,
		"symbol":   venueSymbol(symbol),
		"orderId":  id,
	}
	_, err := b.sendRequest(ctx, http.MethodPost, "/v5/order/cancel", payload, true)
	return err
}

// --- futures ---

func (b *BybitAdapter) GetOpenPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	if b.category != "linear" && b.category != "inverse" {
		return nil, domain.ErrNotSupported
	}
	path := fmt.Sprintf("/v5/position/list?category=%s&symbol=%s", b.category, venueSymbol(symbol))
	result, err := b.sendRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		List []struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Size          string `json:"size"`
			AvgPrice      string `json:"avgPrice"`
			MarkPrice     string `json:"markPrice"`
			Leverage      string `json:"leverage"`
			LiqPrice      string `json:"liqPrice"`
			UnrealisedPnl string `json:"unrealisedPnl"`
			PositionIdx   int    `json:"positionIdx"`
		} `json:"list"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.List) == 0 {
		return nil, nil
	}
	row := parsed.List[0]
	size := parseDecimal(row.Size)
	if size.IsZero() {
		return nil, nil
	}
	side := domain.PositionLong
	if strings.EqualFold(row.Side, "Sell") {
		side = domain.PositionShort
	}
	mode := domain.OneWayMode
	if row.PositionIdx != 0 {
		mode = domain.HedgeMode
	}
	contract := domain.LinearContract
	if b.category == "inverse" {
		contract = domain.InverseContract
	}
	return &domain.Position{
		Symbol:           b.coreSymbol(row.Symbol),
		Side:             side,
		Contract:         contract,
		Mode:             mode,
		Quantity:         size,
		EntryPrice:       parseDecimal(row.AvgPrice),
		MarkPrice:        parseDecimal(row.MarkPrice),
		Leverage:         parseDecimal(row.Leverage),
		LiquidationPrice: parseDecimal(row.LiqPrice),
		UnrealisedPnL:    parseDecimal(row.UnrealisedPnl),
	}, nil
}

func (b *BybitAdapter) GetFundingRate(ctx context.Context, symbol string) (*domain.FundingInfo, error) {
	if b.category != "linear" && b.category != "inverse" {
		return nil, domain.ErrNotSupported
	}
	rows, err := b.fetchTickerRows(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrBadSymbol, symbol)
	}
	row := rows[0]
	ms, _ := strconv.ParseInt(row.NextFundingT, 10, 64)
	return &domain.FundingInfo{
		Symbol:     symbol,
		Rate:       parseDecimal(row.FundingRate),
		NextUpdate: time.UnixMilli(ms),
	}, nil
}

func (b *BybitAdapter) GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	rows, err := b.fetchTickerRows(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrBadSymbol, symbol)
	}
	if mark := parseDecimal(rows[0].MarkPrice); !mark.IsZero() {
		return mark, nil
	}
	return parseDecimal(rows[0].LastPrice), nil
}

// --- fees and misc ---

// bybit default spot fee rates, used when the fee-rate endpoint is not
// reachable with the given key permissions.
var (
	bybitDefaultMakerRate = decimal.NewFromFloat(0.001)
	bybitDefaultTakerRate = decimal.NewFromFloat(0.001)
)

func (b *BybitAdapter) CalculateFee(symbol string, orderType domain.TradeOrderType, side domain.OrderSide, amount, price decimal.Decimal, takerOrMaker domain.TakerOrMaker) (*domain.Fee, error) {
	rate := bybitDefaultTakerRate
	if takerOrMaker == domain.Maker {
		rate = bybitDefaultMakerRate
	}
	base, quote := domain.SplitSymbol(symbol)
	if side == domain.SideBuy {
		return &domain.Fee{Currency: base, Cost: amount.Mul(rate), Rate: rate}, nil
	}
	return &domain.Fee{Currency: quote, Cost: amount.Mul(price).Mul(rate), Rate: rate}, nil
}

func (b *BybitAdapter) SetSandboxMode(enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sandboxed = enabled
	if enabled {
		b.baseURL = BybitTestnetBaseURL
	} else {
		b.baseURL = BybitBaseURL
	}
	return nil
}

func (b *BybitAdapter) Milliseconds() int64 { return time.Now().UnixMilli() }

// ParseOrderStatus collapses Bybit v5 order statuses onto the core set.
func (b *BybitAdapter) ParseOrderStatus(raw string) domain.OrderStatus {
	switch raw {
	case "New", "Created", "Untriggered":
		return domain.StatusOpen
	case "PartiallyFilled":
		return domain.StatusPartiallyFilled
	case "Filled":
		return domain.StatusFilled
	case "Cancelled", "PartiallyFilledCanceled":
		return domain.StatusCanceled
	case "Rejected":
		return domain.StatusRejected
	case "Deactivated":
		return domain.StatusExpired
	default:
		return domain.OrderStatus(strings.ToLower(raw))
	}
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
