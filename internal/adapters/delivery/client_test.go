package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/okian/worksight/internal/adapters/delivery"
	"github.com/okian/worksight/internal/adapters/identity"
	. "github.com/smartystreets/goconvey/convey"
)

type recorded struct {
	path    string
	headers http.Header
	body    []byte
}

type collector struct {
	mu       sync.Mutex
	requests []recorded
	status   int
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.requests = append(c.requests, recorded{path: r.URL.Path, headers: r.Header.Clone(), body: body})
	status := c.status
	c.mu.Unlock()

	if status != 0 {
		http.Error(w, "boom", status)
		return
	}
	if r.URL.Path == "/api/sessions/" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id": 42}`))
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (c *collector) setStatus(code int) {
	c.mu.Lock()
	c.status = code
	c.mu.Unlock()
}

func (c *collector) last() recorded {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func TestClient(t *testing.T) {
	Convey("Given a collector", t, func() {
		col := &collector{}
		srv := httptest.NewServer(col)
		defer srv.Close()

		ctx := context.Background()
		client := delivery.New(srv.URL+"/", "ep-1")

		Convey("When a session is created", func() {
			id, err := client.CreateSession(ctx, identity.SystemInfo{Hostname: "h", Username: "u", IPAddress: "10.0.0.1"})

			Convey("Then the id is stored and the agent identifies itself", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, 42)
				So(client.SessionID(), ShouldEqual, 42)

				var sent map[string]any
				So(json.Unmarshal(col.last().body, &sent), ShouldBeNil)
				So(sent["agent_name"], ShouldEqual, delivery.AgentName)
				So(sent["agent_version"], ShouldEqual, delivery.DefaultAgentVersion)
				So(sent["hostname"], ShouldEqual, "h")
			})

			Convey("And heartbeats use the session route", func() {
				So(client.SendHeartbeat(ctx), ShouldBeNil)
				So(col.last().path, ShouldEqual, "/api/sessions/42/heartbeat/")
			})
		})

		Convey("When no session exists", func() {
			So(client.SendHeartbeat(ctx), ShouldBeNil)

			Convey("Then the heartbeat goes to the session-less route", func() {
				So(col.last().path, ShouldEqual, "/api/heartbeat/")
			})
		})

		Convey("When a metric is sent", func() {
			err := client.SendMetric(ctx, []byte(`{"productivity_score":0.5}`), "key-1")

			Convey("Then payload and headers are forwarded", func() {
				So(err, ShouldBeNil)
				req := col.last()
				So(req.path, ShouldEqual, "/api/ai-metrics/")
				So(string(req.body), ShouldEqual, `{"productivity_score":0.5}`)
				So(req.headers.Get(delivery.HeaderIdempotencyKey), ShouldEqual, "key-1")
				So(req.headers.Get(delivery.HeaderEndpointID), ShouldEqual, "ep-1")
				So(req.headers.Get("Content-Type"), ShouldEqual, "application/json")
			})
		})

		Convey("When a health snapshot is sent", func() {
			err := client.SendHealth(ctx, map[string]any{"hostname": "h", "disk_usage_percent": 12.5})

			Convey("Then it is posted as JSON", func() {
				So(err, ShouldBeNil)
				So(col.last().path, ShouldEqual, "/api/health/")
			})
		})

		Convey("When the collector rejects requests", func() {
			col.setStatus(http.StatusServiceUnavailable)
			err := client.SendMetric(ctx, []byte(`{}`), "key-2")

			Convey("Then a StatusError matching ErrRejected is returned", func() {
				So(errors.Is(err, delivery.ErrRejected), ShouldBeTrue)
				var se *delivery.StatusError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
				So(se.Body, ShouldEqual, "boom")
			})

			Convey("And session creation fails", func() {
				_, err := client.CreateSession(ctx, identity.SystemInfo{})
				So(err, ShouldNotBeNil)
				So(client.SessionID(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given an unreachable collector", t, func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		err := delivery.New(url, "ep-1").SendMetric(context.Background(), []byte(`{}`), "k")

		Convey("Then a transport error is returned", func() {
			So(err, ShouldNotBeNil)
			So(errors.Is(err, delivery.ErrRejected), ShouldBeFalse)
		})
	})
}
