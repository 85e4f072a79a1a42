package query

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/generalsystem/dfi/connect"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
)

// Event names sent on a query stream.
const (
	EventKeepAlive  = "keepAlive"
	EventMessage    = "message"
	EventFinish     = "finish"
	EventQueryError = "queryError"
)

// aggregator folds the data of each message event into a result.
type aggregator interface {
	add(data string) error
	describe() string
}

type countAgg struct {
	count int64
}

func (a *countAgg) add(data string) error {
	var n int64
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return errors.Wrapf(err, "decoding count '%s'", data)
	}
	a.count += n
	return nil
}

func (a *countAgg) describe() string {
	return fmt.Sprintf("Collecting %s counts", thousands(a.count))
}

type uniqueIDAgg struct {
	counts map[string]int64
}

func (a *uniqueIDAgg) add(data string) error {
	var m map[string]int64
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return errors.Wrap(err, "decoding unique id counts")
	}
	for k, v := range m {
		a.counts[k] = v
	}
	return nil
}

func (a *uniqueIDAgg) describe() string {
	return fmt.Sprintf("Collecting %s unique ids", thousands(int64(len(a.counts))))
}

type recordsAgg struct {
	set *RecordSet
}

func (a *recordsAgg) add(data string) error {
	var recs []Record
	if err := json.Unmarshal([]byte(data), &recs); err != nil {
		return errors.Wrap(err, "decoding records")
	}
	a.set.add(recs)
	return nil
}

func (a *recordsAgg) describe() string {
	return fmt.Sprintf("Collecting %s records.", thousands(int64(a.set.Len())))
}

// finishMessage is the data of the finish event.
type finishMessage struct {
	MessageCount int `json:"messageCount"`
}

// receive reads the event stream in body into agg and checks that it was
// complete.
func (s *Service) receive(body io.Reader, agg aggregator) error {
	var (
		events   int
		received int
		finish   *finishMessage
		bar      *progressbar.ProgressBar
	)
	if s.conn.ProgressBar() {
		bar = s.newProgressBar()
		defer func() { _ = bar.Finish() }()
	}
	stats := s.conn.Statter()
	er := connect.NewEventReader(body)

loop:
	for {
		ev, err := er.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		events++
		stats.Count("dfi.query.events", 1, 1.0, "event:"+ev.Name)
		switch ev.Name {
		case EventKeepAlive:
			continue
		case EventMessage:
			received++
			if err := agg.add(ev.Data); err != nil {
				return err
			}
			if bar != nil {
				bar.Describe(agg.describe())
				_ = bar.Add(1)
			}
		case EventFinish:
			finish = &finishMessage{}
			if err := json.Unmarshal([]byte(ev.Data), finish); err != nil {
				return errors.Wrapf(err, "decoding finish message '%s'", ev.Data)
			}
			break loop
		case EventQueryError:
			return errors.Wrap(dfi.ErrDFIResponse, ev.Data)
		default:
			return errors.Wrapf(dfi.ErrUnknownMessageReceived, "event '%s': %s", ev.Name, ev.Data)
		}
	}

	if events == 0 {
		return dfi.ErrNoEventsReceived
	}
	if finish == nil {
		return dfi.ErrNoFinishMessageReceived
	}
	if received != finish.MessageCount {
		return errors.Wrapf(dfi.ErrEventsMissed, "Received %d/%d events from DFI API", received, finish.MessageCount)
	}
	s.conn.Logger().Debugf("query stream complete: %d messages", received)
	return nil
}

func (s *Service) newProgressBar() *progressbar.ProgressBar {
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(s.progressOut),
		progressbar.OptionSetDescription("Waiting for results"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(500*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(s.progressOut)
		}),
	)
}

// thousands renders n with comma separators.
func thousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
