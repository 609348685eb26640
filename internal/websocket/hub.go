// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	wstypes "license-service/internal/domain/websocket"
	"license-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

// Hub fans license and activation events out to connected operator
// dashboards. Clients are grouped by token subject.
type Hub struct {
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	broadcast chan *BroadcastMessage

	handlerRegistry *HandlerRegistry

	jwtVerifier *jwt.Verifier
	revocations RevocationChecker
	logger      *zap.Logger

	done     chan struct{}
	doneOnce sync.Once
}

type BroadcastMessage struct {
	Subjects []string
	Channel  wstypes.ChannelType
	Message  *wstypes.WSMessage
}

func NewHub(jwtVerifier *jwt.Verifier, logger *zap.Logger) *Hub {
	return &Hub{
		clients:         make(map[string]map[*Client]bool),
		Register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *BroadcastMessage, 256),
		handlerRegistry: NewHandlerRegistry(),
		jwtVerifier:     jwtVerifier,
		logger:          logger,
		done:            make(chan struct{}),
	}
}

// RevocationChecker reports whether a token id was revoked before expiry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// WithRevocations makes AuthenticateClient refuse revoked tokens.
func (h *Hub) WithRevocations(r RevocationChecker) *Hub {
	h.revocations = r
	return h
}

// AuthenticateClient validates the JWT token. Only operators may connect.
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	if h.jwtVerifier == nil {
		return nil, ErrUnauthorized
	}
	claims, err := h.jwtVerifier.VerifyAccessToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !claims.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if h.revocations != nil {
		revoked, err := h.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}

	return &ClientAuth{
		Subject:   claims.Subject,
		SessionID: claims.ID,
		Roles:     claims.Roles,
	}, nil
}

// Add hands a client to the hub. It reports false once the hub has stopped.
func (h *Hub) Add(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// RegisterHandler adds a handler for client events. It fails when one of
// the handler's events is already served.
func (h *Hub) RegisterHandler(handler MessageHandler) error {
	return h.handlerRegistry.Register(handler)
}

// HandleClientMessage processes a message from a client using registered handlers
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	handler, exists := h.handlerRegistry.GetHandler(msg.Type)
	if !exists {
		return false, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}

// Run serves registrations and broadcasts until ctx is done. It returns nil
// so it can sit in an errgroup beside the HTTP server.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.subject] == nil {
		h.clients[client.subject] = make(map[*Client]bool)
	}
	h.clients[client.subject][client] = true

	h.logger.Info("websocket client connected",
		zap.String("subject", client.subject),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()))

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"subject":    client.subject,
		"session_id": client.sessionID,
		"roles":      client.roles,
		"channels":   wstypes.AllChannels(),
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.subject]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.subject)
			}

			h.logger.Info("websocket client disconnected",
				zap.String("subject", client.subject),
				zap.String("session_id", client.sessionID),
				zap.Int("total", h.totalClients()))
		}
	}
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deliver := func(clients map[*Client]bool) {
		for client := range clients {
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}

	if msg.Subjects == nil {
		for _, clients := range h.clients {
			deliver(clients)
		}
		return
	}
	for _, subject := range msg.Subjects {
		if clients, ok := h.clients[subject]; ok {
			deliver(clients)
		}
	}
}

// PublishLicenseEvent queues an event for every subscriber of its channel.
// It never blocks the caller; when the queue is full the event is dropped.
func (h *Hub) PublishLicenseEvent(eventType wstypes.EventType, data *wstypes.LicenseEventData) {
	msg := &BroadcastMessage{
		Channel: wstypes.ChannelFor(eventType),
		Message: wstypes.NewMessage(eventType, data),
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping event",
			zap.String("type", string(eventType)))
	}
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// DisconnectSession closes every connection opened with the token whose
// jti is sessionID and reports how many were closed.
func (h *Hub) DisconnectSession(sessionID string, reason string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	disconnectMsg := wstypes.NewMessage(wstypes.EventTypeDisconnected, map[string]interface{}{
		"reason": reason,
	})

	closed := 0
	for subject, clients := range h.clients {
		for client := range clients {
			if client.sessionID != sessionID {
				continue
			}
			client.SendMessage(disconnectMsg)
			client.Close()
			delete(clients, client)
			closed++
		}
		if len(clients) == 0 {
			delete(h.clients, subject)
		}
	}

	if closed > 0 {
		h.logger.Info("disconnected websocket session",
			zap.String("session_id", sessionID),
			zap.String("reason", reason),
			zap.Int("connections", closed))
	}
	return closed
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.doneOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for subject, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
		delete(h.clients, subject)
	}
}
