package progress

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/echolab/transcriptor/pkg/logger"
)

// writeWait bounds how long a single client write may stall before the
// client is considered dead.
const writeWait = 5 * time.Second

// sendBuffer is the per-client event backlog. A subscriber that falls this
// far behind is dropped rather than allowed to slow anyone else down.
const sendBuffer = 16

// event is the wire envelope sent to websocket clients.
type event struct {
	Type       string  `json:"type"`
	Update     *Update `json:"update,omitempty"`
	JobID      string  `json:"job_id,omitempty"`
	Error      string  `json:"error,omitempty"`
	OutputPath string  `json:"output_path,omitempty"`
}

// client is one subscriber with its own backlog and writer goroutine.
type client struct {
	conn  *websocket.Conn
	jobID string // job filter ("" = all)
	send  chan event
}

// Hub broadcasts progress events to websocket subscribers. Clients may
// subscribe to one job or, with an empty job id, to everything. Every
// client writes from its own goroutine through a small backlog, so
// emitting never waits on a socket; a client whose backlog fills or whose
// write fails is dropped on the spot. The hub never queues for the dead.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]*client
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.WithComponent("progress-hub"),
	}
}

// ServeHTTP upgrades the request and subscribes the client to the job
// named by the "job" query parameter, or to all jobs when absent.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	jobID := r.URL.Query().Get("job")
	h.add(conn, jobID)

	// Drain the read side to notice disconnects; clients never send
	// anything meaningful.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) add(conn *websocket.Conn, jobID string) {
	c := &client{
		conn:  conn,
		jobID: jobID,
		send:  make(chan event, sendBuffer),
	}
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()
	go h.writePump(c)
}

// remove unregisters a client and closes its backlog, which stops its
// writer. Safe to call more than once.
func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	c, known := h.clients[conn]
	if known {
		delete(h.clients, conn)
		close(c.send)
	}
	h.mu.Unlock()
	if known {
		_ = conn.Close()
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// writePump drains one client's backlog onto its socket. It exits when the
// backlog closes or a write fails, unregistering the client either way.
func (h *Hub) writePump(c *client) {
	defer h.remove(c.conn)
	for ev := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.log.Debug().Err(err).Msg("Dropped dead websocket client")
			return
		}
	}
}

// broadcast fans the event out to every matching client's backlog without
// touching a socket. Clients whose backlog is already full are dropped.
func (h *Hub) broadcast(jobID string, ev event) {
	var full []*websocket.Conn

	h.mu.Lock()
	for conn, c := range h.clients {
		if c.jobID != "" && c.jobID != jobID {
			continue
		}
		select {
		case c.send <- ev:
		default:
			full = append(full, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range full {
		h.log.Debug().Msg("Dropped websocket client with a full backlog")
		h.remove(conn)
	}
}

func (h *Hub) Emit(u Update) {
	h.broadcast(u.JobID, event{Type: "progress", Update: &u})
}

func (h *Hub) EmitError(jobID string, err error) {
	h.broadcast(jobID, event{Type: "error", JobID: jobID, Error: err.Error()})
}

func (h *Hub) EmitComplete(jobID, outputPath string) {
	h.broadcast(jobID, event{Type: "complete", JobID: jobID, OutputPath: outputPath})
}
