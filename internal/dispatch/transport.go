package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/framelink/internal/bus"
)

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithTransportLogger attaches a structured logger.
func WithTransportLogger(log zerolog.Logger) TransportOption {
	return func(t *HTTPTransport) { t.log = log }
}

// WithTransportClock overrides the clock used for poll error backoff.
func WithTransportClock(clock clockwork.Clock) TransportOption {
	return func(t *HTTPTransport) { t.clock = clock }
}

// WithPollWait sets the long-poll wait hint sent to the relay.
func WithPollWait(wait time.Duration) TransportOption {
	return func(t *HTTPTransport) { t.pollWait = wait }
}

// Side names which half of the channel this transport serves. Each direction
// gets its own relay sub-channel so a sender never reads back its own frames.
type Side string

const (
	SideParent Side = "parent"
	SideChild  Side = "child"
)

func (s Side) peer() Side {
	if s == SideParent {
		return SideChild
	}
	return SideParent
}

// HTTPTransport is a bus.Transport that rides the dispatch relay: sends are
// POSTed, receives are long-polled. It lets the two halves of a channel live
// in different processes.
type HTTPTransport struct {
	client    *resty.Client
	channelID string
	sendTo    string
	recvFrom  string
	log       zerolog.Logger
	clock     clockwork.Clock
	pollWait  time.Duration

	in     chan bus.Frame
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewHTTPTransport connects one side of a channel to the relay at baseURL and
// starts the receive loop.
func NewHTTPTransport(baseURL, channelID string, side Side, opts ...TransportOption) *HTTPTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &HTTPTransport{
		client:    resty.New().SetBaseURL(baseURL).SetTimeout(2 * time.Minute),
		channelID: channelID,
		sendTo:    channelID + ":" + string(side.peer()),
		recvFrom:  channelID + ":" + string(side),
		log:       zerolog.Nop(),
		clock:     clockwork.NewRealClock(),
		pollWait:  25 * time.Second,
		in:        make(chan bus.Frame, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.pollLoop()
	return t
}

// Claim asks the relay for exclusive ownership of the channel.
func (t *HTTPTransport) Claim(ctx context.Context, owner string) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"owner": owner}).
		Post("/relay/v1/channels/" + t.channelID + "/claim")
	if err != nil {
		return fmt.Errorf("claim channel %s: %w", t.channelID, err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return fmt.Errorf("claim channel %s: already claimed", t.channelID)
	}
	if resp.IsError() {
		return fmt.Errorf("claim channel %s: relay returned %d", t.channelID, resp.StatusCode())
	}
	return nil
}

func (t *HTTPTransport) Send(ctx context.Context, frame bus.Frame) error {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(frame).
		Post("/relay/v1/channels/" + t.sendTo + "/events")
	if err != nil {
		return fmt.Errorf("send frame to channel %s: %w", t.channelID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("send frame to channel %s: relay returned %d", t.channelID, resp.StatusCode())
	}
	return nil
}

func (t *HTTPTransport) Receive() <-chan bus.Frame {
	return t.in
}

func (t *HTTPTransport) Close() error {
	t.closeOnce.Do(t.cancel)
	return nil
}

func (t *HTTPTransport) pollLoop() {
	defer close(t.in)

	cursor := ""
	for {
		if t.ctx.Err() != nil {
			return
		}

		var resp pollResponse
		res, err := t.client.R().
			SetContext(t.ctx).
			SetQueryParam("cursor", cursor).
			SetQueryParam("wait", t.pollWait.String()).
			SetResult(&resp).
			Get("/relay/v1/channels/" + t.recvFrom + "/events")
		if err != nil || res.IsError() {
			if t.ctx.Err() != nil {
				return
			}
			t.log.Warn().Err(err).Str("channel", t.channelID).Msg("relay poll failed, backing off")
			select {
			case <-t.ctx.Done():
				return
			case <-t.clock.After(time.Second):
			}
			continue
		}

		for _, rec := range resp.Records {
			select {
			case t.in <- rec.Frame:
			case <-t.ctx.Done():
				return
			}
		}
		if resp.Cursor != "" {
			cursor = resp.Cursor
		}
	}
}
