package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// wire frames exchanged with the realtime endpoint
type clientFrame struct {
	Channel string       `json:"channel"`
	Join    *TableFilter `json:"join,omitempty"`
	Leave   bool         `json:"leave,omitempty"`
}

type serverFrame struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
}

// SocketClient is the production change-feed client: a single websocket
// to the realtime service, fanned out through one in-process topic per
// channel. The per-topic delivery goroutine is what gives per-channel
// ordering; cross-channel order is not preserved.
//
// On a connection drop the client redials with backoff and re-joins all
// channels. Events generated during the gap are gone: handlers never
// learn about the drop, and consumers re-derive truth on visibility
// regain or an explicit signal.
type SocketClient struct {
	url    string
	pubsub *gochannel.GoChannel

	mu    sync.Mutex
	conn  *websocket.Conn
	joins map[string]TableFilter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSocketClient creates a client for the given realtime endpoint and
// starts the connection loop.
func NewSocketClient(url string) *SocketClient {
	ctx, cancel := context.WithCancel(context.Background())
	c := &SocketClient{
		url: url,
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, watermill.NopLogger{}),
		joins:  make(map[string]TableFilter),
		ctx:    ctx,
		cancel: cancel,
	}
	c.wg.Add(1)
	go c.connectLoop()
	return c
}

func topicFor(channelKey string) string { return "feed:" + channelKey }

// Subscribe implements Client.
func (c *SocketClient) Subscribe(channelKey string, filter TableFilter, handler Handler) (*Subscription, error) {
	subCtx, subCancel := context.WithCancel(c.ctx)
	msgs, err := c.pubsub.Subscribe(subCtx, topicFor(channelKey))
	if err != nil {
		subCancel()
		return nil, fmt.Errorf("subscribing to channel %s: %w", channelKey, err)
	}

	c.mu.Lock()
	c.joins[channelKey] = filter
	if c.conn != nil {
		if err := c.conn.WriteJSON(clientFrame{Channel: channelKey, Join: &filter}); err != nil {
			log.Warn().Err(err).Str("channel", channelKey).Msg("join frame failed, will rejoin on reconnect")
		}
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				log.Error().Err(err).Str("channel", channelKey).Msg("undecodable feed event")
				msg.Ack()
				continue
			}
			handler(ev)
			msg.Ack()
		}
	}()

	return &Subscription{
		channelKey: channelKey,
		stop: func() {
			subCancel()
			c.mu.Lock()
			delete(c.joins, channelKey)
			if c.conn != nil {
				_ = c.conn.WriteJSON(clientFrame{Channel: channelKey, Leave: true})
			}
			c.mu.Unlock()
		},
	}, nil
}

// Close tears the socket and all subscriptions down.
func (c *SocketClient) Close() error {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
	return c.pubsub.Close()
}

// connectLoop dials, pumps frames into the per-channel topics, and
// redials with exponential backoff on failure.
func (c *SocketClient) connectLoop() {
	defer c.wg.Done()
	delay := reconnectBaseDelay
	for {
		if c.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.url, nil)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", delay).Msg("realtime dial failed")
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}
		delay = reconnectBaseDelay

		c.mu.Lock()
		c.conn = conn
		rejoinErr := c.rejoinLocked()
		c.mu.Unlock()
		if rejoinErr != nil {
			log.Warn().Err(rejoinErr).Msg("rejoin after reconnect failed")
			conn.Close()
			continue
		}
		log.Info().Str("url", c.url).Msg("realtime connected")

		c.readFrames(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}
}

func (c *SocketClient) rejoinLocked() error {
	for channelKey, filter := range c.joins {
		f := filter
		if err := c.conn.WriteJSON(clientFrame{Channel: channelKey, Join: &f}); err != nil {
			return err
		}
	}
	return nil
}

func (c *SocketClient) readFrames(conn *websocket.Conn) {
	for {
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if c.ctx.Err() == nil {
				log.Warn().Err(err).Msg("realtime read failed, reconnecting")
			}
			return
		}
		payload, err := json.Marshal(frame.Event)
		if err != nil {
			continue
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := c.pubsub.Publish(topicFor(frame.Channel), msg); err != nil {
			log.Error().Err(err).Str("channel", frame.Channel).Msg("publishing feed event")
		}
	}
}
