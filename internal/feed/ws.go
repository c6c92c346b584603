package feed

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fleet-tracker/internal/fleet"
	"fleet-tracker/internal/tracking"
)

const (
	pingPeriod   = 30 * time.Second
	pongWait     = 60 * time.Second
	ctrlTimeout  = 5 * time.Second
	maxFrameSize = 1 << 16
)

type watcher struct {
	onFix func(tracking.Fix)
	onErr func(error)
}

// Hub accepts device WebSocket connections and routes their position
// reports to the trip watching that driver. Reports for a driver with no
// running trip are dropped.
type Hub struct {
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[string]*websocket.Conn
	watchers map[string]*watcher
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:    make(map[string]*websocket.Conn),
		watchers: make(map[string]*watcher),
	}
}

// Sources returns a factory handing each trip the hub feed of its driver.
func (h *Hub) Sources() tracking.SourceFactory {
	return func(busID string, _ fleet.Route) (tracking.Source, error) {
		return h.Source(busID), nil
	}
}

func (h *Hub) Source(driverID string) tracking.Source {
	return hubSource{hub: h, driverID: driverID}
}

type hubSource struct {
	hub      *Hub
	driverID string
}

func (s hubSource) Watch(onFix func(tracking.Fix), onErr func(error)) (func(), error) {
	h := s.hub
	w := &watcher{onFix: onFix, onErr: onErr}
	h.mu.Lock()
	h.watchers[s.driverID] = w
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		if h.watchers[s.driverID] == w {
			delete(h.watchers, s.driverID)
		}
		h.mu.Unlock()
	}, nil
}

func (h *Hub) watcher(driverID string) *watcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.watchers[driverID]
}

func (h *Hub) deliver(driverID string, data []byte) {
	w := h.watcher(driverID)
	if w == nil {
		return
	}
	fix, err := decode(data)
	if err != nil {
		w.onErr(err)
		return
	}
	w.onFix(fix)
}

// Connected lists drivers with an open device connection.
func (h *Hub) Connected() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) add(driverID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.conns[driverID]; ok {
		_ = old.Close()
	}
	h.conns[driverID] = conn
}

func (h *Hub) remove(driverID string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[driverID] != conn {
		return false
	}
	delete(h.conns, driverID)
	return true
}

// Serve upgrades the request and reads the driver's reports until the
// device goes away. Losing the last connection is reported to the trip as
// a sensor error.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, driverID string) {
	log := h.log.WithField("driver_id", driverID)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	h.add(driverID, conn)
	log.Info("device connected")

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("device connection lost")
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.deliver(driverID, data)
	}

	if h.remove(driverID, conn) {
		if wt := h.watcher(driverID); wt != nil {
			wt.onErr(fmt.Errorf("%w: device disconnected", tracking.ErrSensorUnavailable))
		}
		log.Info("device disconnected")
	}
}
