package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 10
	writeWait         = 2 * time.Second
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

// streamHandler pushes every published snapshot to the client as a JSON
// text frame until either side goes away.
func streamHandler(hub *Hub, log logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied to the client.
			log.WithError(err).Debug("websocket upgrade failed")
			return
		}
		defer socket.Close()

		id, ch := hub.Subscribe(messageBufferSize)
		defer hub.Unsubscribe(id)
		log.WithField("remote", r.RemoteAddr).Debug("websocket client joined")

		// Reads only serve to notice the client closing.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := socket.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-gone:
				log.WithField("remote", r.RemoteAddr).Debug("websocket client left")
				return
			case <-r.Context().Done():
				return
			case snap, ok := <-ch:
				if !ok {
					return
				}
				_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
				if err := socket.WriteJSON(snap); err != nil {
					log.WithError(err).Debug("websocket write failed")
					return
				}
			}
		}
	})
}
