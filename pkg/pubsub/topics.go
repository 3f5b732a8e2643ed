// Package pubsub publishes papshop events to Google Cloud Pub/Sub. Every
// topic gets one long-lived publisher with message ordering on, so events
// sharing an ordering key arrive in the order they were sent.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/papshop-backend/pkg/config"
	"github.com/angelmondragon/papshop-backend/pkg/logger"
)

// Result resolves to the server-assigned message id.
type Result interface {
	Get(ctx context.Context) (string, error)
}

type failed struct{ err error }

func (f failed) Get(context.Context) (string, error) { return "", f.err }

// Topics owns the client and one publisher per known topic.
type Topics struct {
	client     *gcppubsub.Client
	project    string
	publishers map[string]*gcppubsub.Publisher
}

// Dial connects with the GCP credentials from config and opens the topics.
func Dial(ctx context.Context, gcp config.GCPConfig, topics []string, logg *logger.Logger) (*Topics, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errors.New("gcp project id is required")
	}
	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	client, err := gcppubsub.NewClient(ctx, gcp.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	t, err := Open(ctx, client, gcp.ProjectID, topics)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub topics ready")
	}
	return t, nil
}

// Open checks every topic exists and starts an ordered publisher for each.
// Topics takes ownership of client.
func Open(ctx context.Context, client *gcppubsub.Client, project string, topics []string) (*Topics, error) {
	if len(topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	t := &Topics{client: client, project: project, publishers: map[string]*gcppubsub.Publisher{}}
	for _, topic := range topics {
		if err := t.exists(ctx, topic); err != nil {
			return nil, err
		}
		publisher := client.Publisher(t.fullName(topic))
		publisher.EnableMessageOrdering = true
		t.publishers[topic] = publisher
	}
	return t, nil
}

func (t *Topics) fullName(topic string) string {
	if strings.HasPrefix(topic, "projects/") {
		return topic
	}
	return "projects/" + t.project + "/topics/" + topic
}

func (t *Topics) exists(ctx context.Context, topic string) error {
	_, err := t.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: t.fullName(topic)})
	switch {
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %s does not exist", topic)
	case err != nil:
		return fmt.Errorf("topic %s: %w", topic, err)
	}
	return nil
}

// Publish sends data to topic. An unknown topic yields a Result that fails.
func (t *Topics) Publish(ctx context.Context, topic, orderingKey string, data []byte, attrs map[string]string) Result {
	publisher, ok := t.publishers[topic]
	if !ok {
		return failed{fmt.Errorf("topic %s is not open", topic)}
	}
	return publisher.Publish(ctx, &gcppubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: orderingKey,
	})
}

// Resume lets orderingKey publish again after a failure paused it.
func (t *Topics) Resume(topic, orderingKey string) {
	if publisher, ok := t.publishers[topic]; ok && orderingKey != "" {
		publisher.ResumePublish(orderingKey)
	}
}

// Ping checks every open topic is still reachable.
func (t *Topics) Ping(ctx context.Context) error {
	for topic := range t.publishers {
		if err := t.exists(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the publishers and closes the client.
func (t *Topics) Close() error {
	for _, publisher := range t.publishers {
		publisher.Stop()
	}
	return t.client.Close()
}
