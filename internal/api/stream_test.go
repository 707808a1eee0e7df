package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lalith-99/brokerguard/internal/audit"
)

func (s *APISuite) TestStreamDeliversOwnTenantEvents() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.hub.Run(ctx) }()

	srv := httptest.NewServer(s.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/broker/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, s.headers(asAlice))
	s.Require().Error(err, "members cannot open the stream")
	s.Equal(http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, s.headers(asBroker))
	s.Require().NoError(err)
	defer conn.Close()

	// The client registers asynchronously, so publish until one arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.hub.Publish(ctx, audit.Event{Type: audit.EventConfigChanged, TenantID: tenantB})
				s.hub.Publish(ctx, audit.Event{Type: audit.EventMessageFlagged, TenantID: tenantA, SubjectID: 7})
			}
		}
	}()

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
	_, payload, err := conn.ReadMessage()
	s.Require().NoError(err)

	var ev audit.Event
	s.Require().NoError(json.Unmarshal(payload, &ev))
	s.Equal(tenantA, ev.TenantID)
	s.Equal(audit.EventMessageFlagged, ev.Type)
}
