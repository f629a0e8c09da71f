package kafkax

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

const dialTimeout = 2 * time.Second

// ReadyCheck reports whether at least one broker in the comma-separated
// list accepts a TCP connection.
func ReadyCheck(brokers string) func(context.Context) error {
	list := SplitBrokers(brokers)
	return func(ctx context.Context) error {
		if len(list) == 0 {
			return errors.New("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: dialTimeout}
		var err error
		for _, addr := range list {
			var conn *kafka.Conn
			if conn, err = dialer.DialContext(ctx, "tcp", addr); err == nil {
				_ = conn.Close()
				return nil
			}
		}
		return err
	}
}
