package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"clob/internal/book"
	"clob/internal/ledger"
	"clob/internal/metrics"
)

// Server exposes the order book engine over HTTP and WebSocket. The engine
// itself enforces order semantics; the server's job is identity resolution,
// request decoding, error mapping, and market-data fan-out.
type Server struct {
	book        *book.Engine
	ledger      ledger.Ledger
	store       *ledger.Store // nil disables auth and transfer history
	hub         *Hub
	sessions    *SessionStore
	rateLimiter *RateLimiter
	upgrader    websocket.Upgrader
	log         zerolog.Logger
	corsOrigins []string
}

func NewServer(engine *book.Engine, led ledger.Ledger, store *ledger.Store, log zerolog.Logger) *Server {
	s := &Server{
		book:        engine,
		ledger:      led,
		store:       store,
		hub:         NewHub(log),
		sessions:    NewSessionStore(store),
		rateLimiter: NewRateLimiter(300, time.Minute),
		log:         log,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.checkCORSOrigin(r.Header.Get("Origin"))
		},
	}

	engine.OnTrade(func(trade book.Trade) {
		metrics.TradesExecuted.Inc()
		metrics.VolumeTraded.Add(float64(trade.Amount))
		metrics.MarketPrice.Set(float64(trade.Price))
		s.hub.Broadcast(map[string]interface{}{
			"type":  "trade",
			"trade": trade,
		})
	})
	return s
}

// Hub returns the WebSocket hub for external broadcasters.
func (s *Server) Hub() *Hub {
	return s.hub
}

// SetCORSOrigins restricts allowed CORS origins. Empty means allow all
// (development mode).
func (s *Server) SetCORSOrigins(origins []string) {
	s.corsOrigins = origins
}

func (s *Server) checkCORSOrigin(origin string) bool {
	if len(s.corsOrigins) == 0 {
		return true
	}
	// Empty origin header = same-origin request, always allow
	if origin == "" {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	allowedOrigins := s.corsOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Maker", "X-Session-Token"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimiter.Middleware)
			r.Post("/orders", s.submitOrder)
			r.Delete("/orders/{id}", s.cancelOrder)
			r.Post("/deposit", s.handleDeposit)
		})

		r.Get("/orders", s.getOrders)
		r.Get("/orders/{id}", s.getOrder)
		r.Get("/book", s.getBook)
		r.Get("/trades", s.getTrades)
		r.Get("/price", s.getPrice)
		r.Get("/balance", s.getBalance)
		r.Get("/transfers", s.getTransfers)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	return r
}

// requestLogger logs each request with zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

type OrderRequest struct {
	Type   string `json:"type"` // "bid", "ask", "market_buy", "market_sell"
	Price  int64  `json:"price"`
	Amount int64  `json:"amount"`
}

type OrderResponse struct {
	OrderID uint64     `json:"order_id"`
	Order   book.Order `json:"order"`
}

func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	maker := s.maker(r)
	if maker == "" {
		http.Error(w, "maker identity required (session or X-Maker header)", http.StatusBadRequest)
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var id uint64
	var err error
	switch req.Type {
	case "bid":
		id, err = s.book.PlaceLimitBid(maker, req.Price, req.Amount)
	case "ask":
		id, err = s.book.PlaceLimitAsk(maker, req.Price, req.Amount)
	case "market_buy":
		id, err = s.book.MarketBuy(maker, req.Amount)
	case "market_sell":
		id, err = s.book.MarketSell(maker, req.Amount)
	default:
		http.Error(w, "type must be bid, ask, market_buy or market_sell", http.StatusBadRequest)
		return
	}
	if err != nil {
		metrics.OrdersRejected.WithLabelValues(rejectReason(err)).Inc()
		s.writeEngineError(w, err)
		return
	}

	metrics.OrdersPlaced.WithLabelValues(req.Type).Inc()
	s.broadcastBookUpdate()

	o, getErr := s.book.Order(id)
	if getErr != nil {
		s.log.Error().Err(getErr).Uint64("id", id).Msg("placed order missing")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(OrderResponse{OrderID: id, Order: o})
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	maker := s.maker(r)
	if maker == "" {
		http.Error(w, "maker identity required (session or X-Maker header)", http.StatusBadRequest)
		return
	}

	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	if err := s.book.Cancel(id, maker); err != nil {
		s.writeEngineError(w, err)
		return
	}

	metrics.OrdersCancelled.Inc()
	s.broadcastBookUpdate()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
}

func (s *Server) getOrders(w http.ResponseWriter, r *http.Request) {
	maker := r.URL.Query().Get("maker")
	if maker == "" {
		maker = s.maker(r)
	}
	if maker == "" {
		http.Error(w, "maker required", http.StatusBadRequest)
		return
	}

	orders := s.book.OrdersByMaker(maker)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orders)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	o, err := s.book.Order(id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(o)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.book.Snapshot())
}

func (s *Server) getTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.book.RecentTrades(limit))
}

type PriceResponse struct {
	Pair        string `json:"pair"`
	MarketPrice int64  `json:"market_price"`
	BestBid     *int64 `json:"best_bid"`
	BestAsk     *int64 `json:"best_ask"`
}

func (s *Server) getPrice(w http.ResponseWriter, r *http.Request) {
	resp := PriceResponse{
		Pair:        s.book.Pair(),
		MarketPrice: s.book.MarketPrice(),
	}
	if bid, ok := s.book.BestBid(); ok {
		resp.BestBid = &bid
	}
	if ask, ok := s.book.BestAsk(); ok {
		resp.BestAsk = &ask
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type BalanceResponse struct {
	Maker string `json:"maker"`
	Base  int64  `json:"base"`
	Quote int64  `json:"quote"`
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	maker := s.maker(r)
	if maker == "" {
		http.Error(w, "maker identity required", http.StatusBadRequest)
		return
	}

	base, err := s.ledger.Balance(maker, s.book.BaseAsset())
	if err != nil {
		http.Error(w, "balance lookup failed", http.StatusInternalServerError)
		return
	}
	quote, err := s.ledger.Balance(maker, s.book.QuoteAsset())
	if err != nil {
		http.Error(w, "balance lookup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BalanceResponse{Maker: maker, Base: base, Quote: quote})
}

type DepositRequest struct {
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

// handleDeposit credits the maker's ledger account. This is the demo
// faucet standing in for an external settlement rail.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	maker := s.maker(r)
	if maker == "" {
		http.Error(w, "maker identity required", http.StatusBadRequest)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Asset != s.book.BaseAsset() && req.Asset != s.book.QuoteAsset() {
		http.Error(w, "unknown asset", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	if err := s.ledger.Credit(maker, req.Asset, req.Amount); err != nil {
		http.Error(w, "deposit failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "deposited"})
}

func (s *Server) getTransfers(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "transfer history not available", http.StatusServiceUnavailable)
		return
	}
	maker := s.maker(r)
	if maker == "" {
		http.Error(w, "maker identity required", http.StatusBadRequest)
		return
	}

	records, err := s.store.TransferHistory(maker, 100)
	if err != nil {
		http.Error(w, "transfer lookup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.hub.Register(client)

	// Send initial book state
	data, _ := json.Marshal(map[string]interface{}{
		"type": "book",
		"book": s.book.Snapshot(),
	})
	client.send <- data

	go client.WritePump()
	go client.ReadPump()
}

// BroadcastBook pushes the current depth to all WebSocket clients.
func (s *Server) BroadcastBook() {
	s.broadcastBookUpdate()
}

func (s *Server) broadcastBookUpdate() {
	snap := s.book.Snapshot()
	metrics.BookDepth.WithLabelValues("bid").Set(float64(len(snap.Bids)))
	metrics.BookDepth.WithLabelValues("ask").Set(float64(len(snap.Asks)))
	s.hub.Broadcast(map[string]interface{}{
		"type": "book",
		"book": snap,
	})
}

// Shutdown stops the server's internal goroutines.
func (s *Server) Shutdown() {
	s.sessions.Stop()
	s.rateLimiter.Stop()
}

// writeEngineError maps engine and ledger errors onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, book.ErrOrderNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, book.ErrOrderNotOpen):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, book.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, book.ErrInvalidAmount),
		errors.Is(err, book.ErrInvalidPrice),
		errors.Is(err, book.ErrNoLiquidity),
		errors.Is(err, ledger.ErrInsufficientBalance):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error().Err(err).Msg("engine call failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, book.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, book.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, book.ErrNoLiquidity):
		return "no_liquidity"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "other"
	}
}
