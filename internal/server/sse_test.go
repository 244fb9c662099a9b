package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/beadgraph/internal/client"
	"github.com/alfredjeanlab/beadgraph/internal/events"
	"github.com/alfredjeanlab/beadgraph/internal/viewport"
)

func TestSSEHub_BroadcastAndReceive(t *testing.T) {
	hub := newSSEHub(8)

	c, backlog := hub.subscribe(nil, 0, false)
	defer hub.unsubscribe(c)
	if backlog != nil {
		t.Fatalf("unexpected backlog %v", backlog)
	}

	hub.broadcast(events.TopicGraphUpdated, []byte(`{"key":"k1"}`))

	select {
	case evt := <-c.ch:
		if evt.Topic != events.TopicGraphUpdated || string(evt.Data) != `{"key":"k1"}` || evt.ID != 1 {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSSEHub_TopicFiltering(t *testing.T) {
	hub := newSSEHub(8)

	c, _ := hub.subscribe([]string{"beads.graph.issue_*"}, 0, false)
	defer hub.unsubscribe(c)

	hub.broadcast(events.TopicGraphUpdated, []byte(`{}`))
	hub.broadcast(events.TopicIssueClicked, []byte(`{"issue_id":"kd-1"}`))

	select {
	case evt := <-c.ch:
		if evt.Topic != events.TopicIssueClicked {
			t.Fatalf("expected click event, got %q", evt.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	select {
	case evt := <-c.ch:
		t.Fatalf("unexpected event: topic=%q", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHub_Unsubscribe(t *testing.T) {
	hub := newSSEHub(8)
	c, _ := hub.subscribe(nil, 0, false)
	hub.unsubscribe(c)
	if hub.clientCount() != 0 {
		t.Fatal("client still registered")
	}

	hub.broadcast(events.TopicGraphUpdated, []byte(`{}`))
	select {
	case <-c.ch:
		t.Fatal("should not receive events after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHub_ReplayOnSubscribe(t *testing.T) {
	hub := newSSEHub(8)
	for i := range 5 {
		topic := events.TopicGraphUpdated
		if i%2 == 1 {
			topic = events.TopicIssueClicked
		}
		hub.broadcast(topic, []byte(fmt.Sprintf(`{"n":%d}`, i+1)))
	}

	c, backlog := hub.subscribe([]string{events.TopicGraphUpdated}, 1, true)
	defer hub.unsubscribe(c)
	if len(backlog) != 2 || backlog[0].ID != 3 || backlog[1].ID != 5 {
		t.Fatalf("expected events 3 and 5, got %+v", backlog)
	}
}

func TestSSEHub_RingBufferWrap(t *testing.T) {
	hub := newSSEHub(4)
	for range 10 {
		hub.broadcast(events.TopicGraphUpdated, []byte(`{}`))
	}
	evts := hub.eventsSince(0)
	if len(evts) != 4 || evts[0].ID != 7 || evts[3].ID != 10 {
		t.Fatalf("unexpected buffered events %+v", evts)
	}
	if got := hub.eventsSince(10); len(got) != 0 {
		t.Fatalf("expected nothing after the newest id, got %d", len(got))
	}
}

func TestMatchTopicPattern(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"beads.graph.updated", "beads.graph.updated", true},
		{"beads.graph.updated", "beads.graph.issue_clicked", false},
		{"beads.graph.*", "beads.graph.issue_clicked", true},
		{"beads.graph.*", "beads.bead.created", false},
		{"beads.>", "beads.graph.updated", true},
		{"beads.>", "beads", false},
		{"beads.>", "other.topic", false},
		{"*.*.*", "beads.graph.updated", true},
		{"*.*.*", "beads.graph", false},
	} {
		t.Run(tc.pattern+"_"+tc.topic, func(t *testing.T) {
			if got := matchTopicPattern(tc.pattern, tc.topic); got != tc.want {
				t.Fatalf("matchTopicPattern(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
			}
		})
	}
}

func TestParseTopics(t *testing.T) {
	got := parseTopics(" beads.graph.* ,, beads.bead.created")
	if len(got) != 2 || got[0] != "beads.graph.*" || got[1] != "beads.bead.created" {
		t.Fatalf("unexpected topics %q", got)
	}
	if parseTopics("") != nil {
		t.Fatal("expected nil for an empty query")
	}
}

// followStream reads the server's event stream with the beads client until
// n events arrived.
func followStream(url string, req *client.StreamRequest, n int) ([]*client.StreamEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []*client.StreamEvent
	err := client.NewHTTPClient(url, "").StreamEvents(ctx, req, func(ev *client.StreamEvent) error {
		got = append(got, ev)
		if len(got) == n {
			cancel()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(got) < n {
		return nil, fmt.Errorf("stream ended after %d of %d events", len(got), n)
	}
	return got, nil
}

func TestHandleEventStream_ReplayWithLastEventID(t *testing.T) {
	srv, _, _, h := newTestServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	// Event 1 is the initial graph.updated; add two clicks.
	srv.broadcastEvent(events.TopicIssueClicked, events.IssueClicked{IssueID: "A"})
	srv.broadcastEvent(events.TopicIssueClicked, events.IssueClicked{IssueID: "B"})

	got, err := followStream(ts.URL, &client.StreamRequest{LastEventID: "1"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ID != "2" || got[1].ID != "3" {
		t.Fatalf("unexpected ids %q %q", got[0].ID, got[1].ID)
	}
	if got[0].Topic != events.TopicIssueClicked || !strings.Contains(string(got[1].Data), `"issue_id":"B"`) {
		t.Fatalf("unexpected events %+v %+v", got[0], got[1])
	}
}

func TestHandleEventStream_LiveClicksAndUpdates(t *testing.T) {
	srv, src, _, h := newTestServer(t)
	ts := httptest.NewServer(h)
	defer ts.Close()

	info := decode[struct{ ID string }](t, do(t, h, http.MethodPost, "/v1/sessions", createSessionRequest{Width: 800, Height: 600}))

	type result struct {
		events []*client.StreamEvent
		err    error
	}
	done := make(chan result, 1)
	go func() {
		evs, err := followStream(ts.URL, &client.StreamRequest{Topics: []string{"beads.graph.*"}}, 2)
		done <- result{evs, err}
	}()

	// Wait for the stream to subscribe before producing events.
	deadline := time.Now().Add(3 * time.Second)
	for srv.sseHub.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	requireStatus(t, do(t, h, http.MethodPost, "/v1/sessions/"+info.ID+"/input",
		viewport.Event{Type: viewport.EventClick, NodeID: "B"}), http.StatusOK)
	g := chainGraph()
	g.Nodes[2].Title = "Ship it"
	src.set(g)
	requireStatus(t, do(t, h, http.MethodPost, "/v1/graph/refresh", nil), http.StatusOK)

	res := <-done
	if res.err != nil {
		t.Fatal(res.err)
	}
	got := res.events
	if got[0].Topic != events.TopicIssueClicked || got[1].Topic != events.TopicGraphUpdated {
		t.Fatalf("unexpected topics %q, %q", got[0].Topic, got[1].Topic)
	}
	if !strings.Contains(string(got[0].Data), `"session_id":"`+info.ID+`"`) {
		t.Errorf("click event missing session id: %s", got[0].Data)
	}
}
