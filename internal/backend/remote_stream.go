package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"vartalap/internal/domain"
	"vartalap/internal/realtime"
)

const (
	eventReady  = "ready"
	eventChange = "change"
	eventError  = "error"
)

var errUnexpectedEvent = errors.New("unexpected event before ready")

// Watch abre el stream SSE del tema y espera el evento "ready". El stream
// sigue vivo hasta Close o hasta que el servidor lo corta.
func (r *Remote) Watch(ctx context.Context, accessToken string, topic realtime.Topic) (realtime.Subscription, error) {
	path, err := eventsPath(topic)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		stop()
		cancel()
		return nil, domain.NewFailure(domain.KindUnknown, "", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := r.stream.Do(req)
	if err != nil {
		stop()
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ConnectivityFailure(fmt.Errorf("open %s: %w", path, err))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		stop()
		cancel()
		return nil, statusFailure(resp.StatusCode, body)
	}

	events := newEventReader(resp.Body)
	first, err := events.Next()
	if err == nil && first != eventReady {
		err = fmt.Errorf("%w: %q", errUnexpectedEvent, first)
	}
	if !stop() || err != nil {
		resp.Body.Close()
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.SubscriptionFailure(fmt.Errorf("%w: %v", domain.ErrSubscriptionDropped, err))
	}

	sig := realtime.NewSignal(func() {
		cancel()
		resp.Body.Close()
	})
	go r.pump(topic, events, sig)
	return sig, nil
}

// pump reenvía los eventos "change" hasta que el stream termina.
func (r *Remote) pump(topic realtime.Topic, events *eventReader, sig *realtime.Signal) {
	for {
		ev, err := events.Next()
		if err != nil {
			r.logger.Debug("event stream closed", zap.String("topic", string(topic)), zap.Error(err))
			sig.Finish(domain.SubscriptionFailure(fmt.Errorf("%w: %v", domain.ErrSubscriptionDropped, err)))
			return
		}
		switch ev {
		case eventChange:
			sig.Notify()
		case eventError:
			r.logger.Warn("event stream error", zap.String("topic", string(topic)))
			sig.Finish(domain.SubscriptionFailure(domain.ErrSubscriptionDropped))
			return
		}
	}
}

func eventsPath(topic realtime.Topic) (string, error) {
	switch kind, id := topic.Split(); kind {
	case realtime.KindChats:
		return "/chats/events", nil
	case realtime.KindMessages:
		return "/chats/" + url.PathEscape(id) + "/messages/events", nil
	}
	return "", domain.ValidationFailure(fmt.Errorf("%w: %s", ErrUnknownTopic, topic))
}

// eventReader lee los nombres de evento de un stream text/event-stream. Los
// datos se ignoran: cada evento es solo una señal.
type eventReader struct {
	sc *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{sc: bufio.NewScanner(r)}
}

func (e *eventReader) Next() (string, error) {
	event := ""
	for e.sc.Scan() {
		line := e.sc.Text()
		switch {
		case line == "":
			if event != "" {
				return event, nil
			}
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
	}
	if err := e.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
