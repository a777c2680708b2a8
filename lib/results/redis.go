// Copyright (c) 2021–2026 The labctl developers. All rights reserved.
// Project site: https://github.com/ongpym/labctl
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package results

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ongpym/labctl/lib/procedure"
)

// publishTimeout bounds a single publish.
const publishTimeout = 2 * time.Second

// Publisher forwards procedure events as JSON messages to a Redis pub/sub
// channel. Events are queued and published from a background goroutine so
// the observer never blocks a run; when the queue is full events are
// dropped with a warning.
type Publisher struct {
	client  *redis.Client
	channel string
	log     logrus.FieldLogger
	queue   chan []byte
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPublisher connects to the Redis server at addr.
func NewPublisher(ctx context.Context, addr, password, channel string, log logrus.FieldLogger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	p := &Publisher{
		client:  client,
		channel: channel,
		log:     log.WithField("redis", addr),
		queue:   make(chan []byte, 256),
	}
	p.wg.Add(1)
	go p.loop()
	return p, nil
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
			p.log.WithError(err).Warn("publish event")
		}
		cancel()
	}
}

// Observe is a procedure.Observer.
func (p *Publisher) Observe(ev procedure.Event) {
	msg, err := EncodeEvent(ev)
	if err != nil {
		p.log.WithError(err).Warn("encode event")
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.log.Warn("event queue full, dropping event")
	}
}

// Close publishes the queued events and disconnects.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
	return p.client.Close()
}

// EncodeEvent returns the JSON message published for ev. Row values that
// JSON cannot carry (NaN, infinities) are sent as null.
func EncodeEvent(ev procedure.Event) ([]byte, error) {
	type message struct {
		procedure.Event
		Row map[string]*float64 `json:"row,omitempty"`
	}
	m := message{Event: ev}
	if ev.Row != nil {
		m.Row = make(map[string]*float64, len(ev.Row))
		for k, v := range ev.Row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				m.Row[k] = nil
				continue
			}
			v := v
			m.Row[k] = &v
		}
	}
	return json.Marshal(m)
}
