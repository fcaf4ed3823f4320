package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const (
	StreamName = "ORG_EVENTS"
	// DeliveryBucket remembers which invite emails were already handed to
	// the mailer so that redeliveries do not send duplicates.
	DeliveryBucket = "INVITE_DELIVERIES"
)

type Client struct {
	nc *nats.Conn
	js nats.JetStreamContext
	kv nats.KeyValue
}

// Connect establishes the NATS connection and initializes JetStream/KV.
func Connect(url string, logger *zap.Logger) (*Client, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.Name("orgkit-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(1 * time.Second),
		nats.ReconnectJitter(500*time.Millisecond, 2*time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Info("connected to NATS", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureInfrastructure(js, logger); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure infrastructure: %w", err)
	}

	kv, err := js.KeyValue(DeliveryBucket)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bind KV bucket: %w", err)
	}

	return &Client{nc: nc, js: js, kv: kv}, nil
}

// Publish encodes v with msgpack and stores it on the ORG_EVENTS stream.
func (c *Client) Publish(ctx context.Context, subject string, v interface{}) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}

	if _, err := c.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Encode is the wire encoding of every event on the stream.
func Encode(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}

func Decode(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// Close drains and closes the NATS connection.
func (c *Client) Close() error {
	return c.nc.Drain()
}

// Connected reports whether the connection is currently usable.
func (c *Client) Connected() bool {
	return c.nc.IsConnected()
}

// JS returns the JetStream context.
func (c *Client) JS() nats.JetStreamContext {
	return c.js
}

// KV returns the invite delivery bucket.
func (c *Client) KV() nats.KeyValue {
	return c.kv
}

func ensureInfrastructure(js nats.JetStreamContext, logger *zap.Logger) error {
	_, err := js.StreamInfo(StreamName)
	if err == nats.ErrStreamNotFound {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       StreamName,
			Subjects:   []string{"orgs.>"},
			Retention:  nats.LimitsPolicy,
			MaxAge:     7 * 24 * time.Hour,
			MaxBytes:   1024 * 1024 * 1024, // 1GB
			MaxMsgSize: 64 * 1024,
			Discard:    nats.DiscardOld,
			Storage:    nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create stream %s: %w", StreamName, err)
		}
		logger.Info("created JetStream stream", zap.String("stream", StreamName))
	} else if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}

	_, err = js.KeyValue(DeliveryBucket)
	if err == nats.ErrBucketNotFound {
		_, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:       DeliveryBucket,
			TTL:          7 * 24 * time.Hour,
			MaxValueSize: 1024,
			History:      1,
			Storage:      nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create KV bucket %s: %w", DeliveryBucket, err)
		}
		logger.Info("created KV bucket", zap.String("bucket", DeliveryBucket))
	} else if err != nil {
		return fmt.Errorf("get KV bucket: %w", err)
	}

	return nil
}
