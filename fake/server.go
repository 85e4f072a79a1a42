package fake

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

// Event is one Server-Sent Event written by the Server.
type Event struct {
	Name string
	Data string
}

// Response is what the Server answers on a route. Exactly one of JSON, Text,
// Raw or Events is used, in that order of preference.
type Response struct {
	Status int
	Header http.Header
	JSON   interface{}
	Text   string
	Raw    []byte
	Events []Event
}

// Request is a request received by the Server.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Decode unmarshals the request body into v.
func (r Request) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Server is an httptest.Server standing in for the DFI API. Routes are
// matched on method and path. Unrouted requests get a 404.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string][]Response
	requests []Request
}

// NewServer starts a Server. Close it when done.
func NewServer() *Server {
	s := &Server{routes: make(map[string][]Response)}
	s.Server = httptest.NewServer(s)
	return s
}

func routeKey(method, path string) string {
	return method + " /" + strings.TrimLeft(path, "/")
}

// Handle queues responses for method and path. They are served in order and
// the last one repeats.
func (s *Server) Handle(method, path string, resps ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[routeKey(method, path)] = resps
}

// HandleJSON answers method and path with a 200 and v encoded as JSON.
func (s *Server) HandleJSON(method, path string, v interface{}) {
	s.Handle(method, path, Response{JSON: v})
}

// HandleStream answers a POST on path with the given event stream.
func (s *Server) HandleStream(path string, events ...Event) {
	s.Handle(http.MethodPost, path, Response{Events: events})
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastRequest returns the most recent request, or the zero Request.
func (s *Server) LastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return Request{}
	}
	return s.requests[len(s.requests)-1]
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := ioutil.ReadAll(r.Body)
	key := routeKey(r.Method, r.URL.Path)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	resps, ok := s.routes[key]
	var resp Response
	if ok && len(resps) > 0 {
		resp = resps[0]
		if len(resps) > 1 {
			s.routes[key] = resps[1:]
		}
	}
	s.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":"no route for %s"}`, key)
		return
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	switch {
	case resp.JSON != nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp.JSON)
	case resp.Text != "":
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp.Text))
	case resp.Raw != nil:
		w.WriteHeader(status)
		_, _ = w.Write(resp.Raw)
	default:
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		flusher, _ := w.(http.Flusher)
		for _, ev := range resp.Events {
			writeEvent(w, ev)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) {
	if ev.Name != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Name)
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		if ev.Data == "" {
			break
		}
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

// Message returns a "message" event carrying v as JSON.
func Message(v interface{}) Event {
	bs, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Event{Name: "message", Data: string(bs)}
}

// Finish returns the "finish" event closing a stream of n messages.
func Finish(n int) Event {
	return Event{Name: "finish", Data: fmt.Sprintf(`{"messageCount":%d}`, n)}
}

// KeepAlive returns a "keepAlive" event.
func KeepAlive() Event {
	return Event{Name: "keepAlive"}
}

// QueryError returns a "queryError" event with the given message.
func QueryError(msg string) Event {
	return Event{Name: "queryError", Data: msg}
}

// Stream returns a message event for each payload followed by a matching
// finish event.
func Stream(payloads ...interface{}) []Event {
	events := make([]Event, 0, len(payloads)+1)
	for _, p := range payloads {
		events = append(events, Message(p))
	}
	return append(events, Finish(len(payloads)))
}
