package statusws

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tu-studio/osc-kreuz/internal/source"
)

func testSources(t *testing.T) []*source.Source {
	t.Helper()
	params := &source.Params{NumRenderers: 2, NumDirectSends: 2, MaxGain: 1, CoordinateScalingFactor: 1}
	return []*source.Source{source.New(1, params), source.New(2, params)}
}

func TestHubPushesSnapshotOnConnect(t *testing.T) {
	hub := NewHub(testSources(t))
	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if len(msg) == 0 {
		t.Errorf("expected a non-empty snapshot payload on connect")
	}
}

func TestHubNotifiableHooksDoNotPanicWithoutClients(t *testing.T) {
	hub := NewHub(testSources(t))
	srcs := testSources(t)
	hub.OnPositionChanged(0, srcs[0])
	hub.OnGainChanged(0, 0, srcs[0])
	hub.OnDirectSendChanged(0, 0, srcs[0])
	hub.OnAttributeChanged(0, "doppler", srcs[0])
}

var _ http.Handler = (*Hub)(nil)
