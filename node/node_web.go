package node

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/gorilla/websocket"
)

const (
	SubBestBlock      = "subscribeBestBlock"
	SubFinalizedBlock = "subscribeFinalizedBlock"
)

// BlockEvent is pushed to subscribers when a block is produced or finalized.
type BlockEvent struct {
	Height       uint64      `json:"height"`
	Hash         common.Hash `json:"hash"`
	PreviousHash common.Hash `json:"previous_hash"`
	Difficulty   uint64      `json:"difficulty"`
	Nonce        uint64      `json:"nonce"`
	TxCount      int         `json:"tx_count"`
	Votes        int         `json:"votes"`
	Score        float64     `json:"score,omitempty"`
}

func newBlockEvent(b *types.Block, votes int, score float64) BlockEvent {
	return BlockEvent{
		Height:       b.Header.Height,
		Hash:         b.Hash,
		PreviousHash: b.Header.PreviousHash,
		Difficulty:   b.Header.Difficulty,
		Nonce:        b.Header.Nonce,
		TxCount:      len(b.Transactions),
		Votes:        votes,
		Score:        score,
	}
}

type SubscriptionRequest struct {
	Method string `json:"method"`
}

type eventEnvelope struct {
	Method string      `json:"method"`
	Result interface{} `json:"result"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type subscription struct {
	client *wsClient
	method string
}

type broadcastMsg struct {
	method string
	data   []byte
}

// Hub fans block events out to websocket subscribers.
type Hub struct {
	clients    map[*wsClient]map[string]bool
	register   chan *wsClient
	unregister chan *wsClient
	subscribe  chan subscription
	broadcast  chan broadcastMsg
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu     sync.Mutex
	counts map[string]int
}

// NewHub starts a hub that runs until ctx ends or Close is called.
func NewHub(ctx context.Context) *Hub {
	cctx, cancel := context.WithCancel(ctx)
	h := &Hub{
		clients:    make(map[*wsClient]map[string]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		subscribe:  make(chan subscription),
		broadcast:  make(chan broadcastMsg, 64),
		ctx:        cctx,
		cancel:     cancel,
		counts:     make(map[string]int),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}

// Subscribers counts the clients subscribed to method.
func (h *Hub) Subscribers(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[method]
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			for client := range h.clients {
				close(client.send)
			}
			return

		case client := <-h.register:
			h.clients[client] = make(map[string]bool)

		case client := <-h.unregister:
			h.drop(client)

		case sub := <-h.subscribe:
			subs, ok := h.clients[sub.client]
			if !ok || subs[sub.method] {
				continue
			}
			subs[sub.method] = true
			h.mu.Lock()
			h.counts[sub.method]++
			h.mu.Unlock()

		case msg := <-h.broadcast:
			for client, subs := range h.clients {
				if !subs[msg.method] {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *wsClient) {
	subs, ok := h.clients[client]
	if !ok {
		return
	}
	h.mu.Lock()
	for method := range subs {
		h.counts[method]--
	}
	h.mu.Unlock()
	delete(h.clients, client)
	close(client.send)
}

// Publish sends result to every subscriber of method.
func (h *Hub) Publish(method string, result interface{}) {
	data, err := json.Marshal(eventEnvelope{Method: method, Result: result})
	if err != nil {
		log.Warn(log.NodeMonitoring, "event encode failed", "method", method, "err", err)
		return
	}
	select {
	case h.broadcast <- broadcastMsg{method: method, data: data}:
	case <-h.ctx.Done():
	}
}

// ServeHTTP upgrades the connection and serves subscription requests on it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(log.NodeMonitoring, "websocket upgrade failed", "err", err)
		return
	}
	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, 256)}
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug(log.NodeMonitoring, "websocket closed", "err", err)
			}
			return
		}
		var req SubscriptionRequest
		if err := json.Unmarshal(message, &req); err != nil {
			log.Warn(log.NodeMonitoring, "invalid subscription message", "err", err)
			continue
		}
		switch req.Method {
		case SubBestBlock, SubFinalizedBlock:
			select {
			case c.hub.subscribe <- subscription{client: c, method: req.Method}:
			case <-c.hub.ctx.Done():
				return
			}
		default:
			log.Warn(log.NodeMonitoring, "unknown subscription method", "method", req.Method)
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeEvents serves hub at /ws on addr until ctx ends.
func ServeEvents(ctx context.Context, addr string, hub *Hub) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
		hub.Close()
	}()
	log.Info(log.NodeMonitoring, "serving block events", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// publish requires n.mu.
func (n *Node) publish(method string, b *types.Block, votes int, score float64) {
	if n.hub == nil {
		return
	}
	n.hub.Publish(method, newBlockEvent(b, votes, score))
}
