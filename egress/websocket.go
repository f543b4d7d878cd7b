package egress

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketWriter implements server.SampleBufferWriter, broadcasting each
// tick's mixed PCM buffer to every connected client as one binary frame,
// adapted from the source server's client-facing WebSocket handlers
// (one upgrade handler, broadcast-to-all-connections fan-out).
type WebSocketWriter struct {
	upgrader   websocket.Upgrader
	encoder    *PCMBinaryEncoder
	sampleRate int
	channels   int

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	timestamp uint64
	frameSize int
}

// NewWebSocketWriter builds a writer broadcasting samplesPerTick*channels
// frames at sampleRate, optionally zstd-compressed via encoder.
func NewWebSocketWriter(encoder *PCMBinaryEncoder, sampleRate, channels, samplesPerTick int) *WebSocketWriter {
	return &WebSocketWriter{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		encoder:    encoder,
		sampleRate: sampleRate,
		channels:   channels,
		clients:    make(map[*websocket.Conn]struct{}),
		frameSize:  samplesPerTick,
	}
}

// ServeHTTP upgrades an incoming request to a WebSocket connection and
// registers it for broadcast. Connections are one-way: the server never
// reads from them beyond detecting closure.
func (w *WebSocketWriter) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("egress: websocket upgrade failed: %v", err)
		return
	}

	w.mu.Lock()
	w.clients[conn] = struct{}{}
	w.mu.Unlock()

	go w.readUntilClosed(conn)
}

// readUntilClosed blocks on reads purely to notice when the peer closes
// the connection, then deregisters it.
func (w *WebSocketWriter) readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	w.mu.Lock()
	delete(w.clients, conn)
	w.mu.Unlock()
	conn.Close()
}

// Write implements server.SampleBufferWriter. An empty/nil buf is the
// end-of-stream sentinel and is dropped silently: there is no reasonable
// wire representation for it, and closing every client connection would
// surprise a viewer mid-session for what is usually a graceful server
// restart, not a stream failure.
func (w *WebSocketWriter) Write(buf []int16) error {
	if len(buf) == 0 {
		return nil
	}

	frame := w.encoder.Encode(buf, w.timestamp, w.sampleRate, w.channels)
	w.timestamp += uint64(w.frameSize)

	w.mu.Lock()
	defer w.mu.Unlock()
	for conn := range w.clients {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			log.Printf("egress: dropping client after write error: %v", err)
			conn.Close()
			delete(w.clients, conn)
		}
	}
	return nil
}
