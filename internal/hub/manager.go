package hub

import (
	"context"
	"sync"

	"civictrack/backend/internal/metrics"
	"civictrack/backend/internal/models"

	"go.uber.org/zap"
)

// Broker carries notifications between server instances.
type Broker interface {
	Publish(ctx context.Context, n models.Notification) error
	Subscribe(ctx context.Context) (<-chan models.Notification, error)
}

// ManagerService keeps the live clients of this instance and delivers
// notifications to every client of the target user.
type ManagerService struct {
	clients map[string]map[Client]struct{}
	mu      sync.RWMutex

	RegisterCh   chan Client
	UnregisterCh chan Client
	deliverCh    chan models.Notification
	done         chan struct{}

	broker Broker
	log    *zap.Logger
}

// NewManagerService creates a hub. broker may be nil for a single instance.
func NewManagerService(broker Broker, log *zap.Logger) *ManagerService {
	return &ManagerService{
		clients:      make(map[string]map[Client]struct{}),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		deliverCh:    make(chan models.Notification, 256),
		done:         make(chan struct{}),
		broker:       broker,
		log:          log,
	}
}

// Run processes registrations and deliveries until ctx is cancelled. All
// remaining clients are closed on exit.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.done)

	var remote <-chan models.Notification
	if m.broker != nil {
		ch, err := m.broker.Subscribe(ctx)
		if err != nil {
			m.log.Error("hub: broker subscription failed, running local only", zap.Error(err))
		} else {
			remote = ch
		}
	}

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case c := <-m.RegisterCh:
			m.add(c)
		case c := <-m.UnregisterCh:
			m.remove(c)
		case n := <-m.deliverCh:
			m.deliver(n)
		case n, ok := <-remote:
			if !ok {
				m.log.Warn("hub: broker subscription closed")
				remote = nil
				continue
			}
			m.deliver(n)
		}
	}
}

// Register adds c. It returns false when the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister removes and closes c. Unknown clients are ignored.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Publish delivers n to the connected clients of n.UserID on every instance.
// Without a broker only this instance is reached.
func (m *ManagerService) Publish(ctx context.Context, n models.Notification) error {
	if m.broker != nil {
		return m.broker.Publish(ctx, n)
	}
	select {
	case m.deliverCh <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return nil
	}
}

// ClientCount returns the number of live clients for userID.
func (m *ManagerService) ClientCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[userID])
}

func (m *ManagerService) add(c Client) {
	m.mu.Lock()
	set, ok := m.clients[c.GetUserID()]
	if !ok {
		set = make(map[Client]struct{})
		m.clients[c.GetUserID()] = set
	}
	set[c] = struct{}{}
	m.mu.Unlock()

	metrics.HubConnections.Inc()
	m.log.Debug("hub: client registered", zap.String("user_id", c.GetUserID()))
}

func (m *ManagerService) remove(c Client) {
	m.mu.Lock()
	set, ok := m.clients[c.GetUserID()]
	if ok {
		_, ok = set[c]
		delete(set, c)
		if len(set) == 0 {
			delete(m.clients, c.GetUserID())
		}
	}
	m.mu.Unlock()

	if ok {
		c.Close()
		metrics.HubConnections.Dec()
	}
}

func (m *ManagerService) deliver(n models.Notification) {
	m.mu.RLock()
	targets := make([]Client, 0, len(m.clients[n.UserID]))
	for c := range m.clients[n.UserID] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.GetSendChannel() <- n:
		default:
			// Повільний клієнт: відключаємо, щоб не блокувати хаб.
			m.log.Warn("hub: dropping slow client", zap.String("user_id", n.UserID))
			m.remove(c)
		}
	}
}

func (m *ManagerService) closeAll() {
	m.mu.Lock()
	all := m.clients
	m.clients = make(map[string]map[Client]struct{})
	m.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.Close()
			metrics.HubConnections.Dec()
		}
	}
}
