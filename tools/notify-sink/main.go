// notify-sink consumes the scheduling notification topics and prints each
// message. Development aid for verifying reminder and lifecycle events
// without standing up a real notification channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/md-rashed-zaman/schedcore/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

func main() {
	var (
		brokers = flag.String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "comma-separated kafka brokers")
		group   = flag.String("group", getenv("KAFKA_GROUP_ID", "notify-sink"), "consumer group id")
		topics  = flag.String("topics", getenv("KAFKA_TOPICS",
			"scheduling.appointment.reminder.v1,scheduling.appointment.confirmed.v1,scheduling.appointment.cancelled.v1,scheduling.appointment.rescheduled.v1"),
			"comma-separated topics")
	)
	flag.Parse()

	var topicList []string
	for _, t := range strings.Split(*topics, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topicList = append(topicList, t)
		}
	}
	if len(topicList) == 0 {
		fatal("at least one topic is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(*brokers),
		GroupID:     *group,
		GroupTopics: topicList,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("consuming %s from %s\n", strings.Join(topicList, ", "), *brokers)
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			time.Sleep(time.Second)
			continue
		}
		meta := kafkax.ExtractEventMeta(msg)
		fmt.Printf("%s topic=%s event_id=%s event_type=%s key=%s\n%s\n",
			msg.Time.UTC().Format(time.RFC3339), msg.Topic, meta.EventID, meta.EventType, string(msg.Key), string(msg.Value))
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
