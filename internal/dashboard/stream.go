package dashboard

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// streamInterval is how often the stream endpoint re-reads the documents.
const streamInterval = 2 * time.Second

// handleStream pushes status snapshots over a websocket whenever the
// underlying documents change. The first snapshot is sent immediately so a
// connecting client renders without waiting a tick.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin checking is the allow-list's job
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var last []byte
	send := func() bool {
		snap := s.snapshot()
		// GeneratedAt changes every read; compare only the content.
		cmp := snap
		cmp.GeneratedAt = time.Time{}
		encoded, err := json.Marshal(cmp)
		if err != nil {
			return true
		}
		if bytes.Equal(encoded, last) {
			return true
		}
		last = encoded
		if err := wsjson.Write(ctx, conn, snap); err != nil {
			return false
		}
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
