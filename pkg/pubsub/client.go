// Package pubsub publishes order events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("pubsub: gcp project id is required")
	errNoOrdersTopic     = errors.New("pubsub: orders topic is required")
	errNotInitialized    = errors.New("pubsub: publisher not initialized")
)

// Publisher owns the client and the publisher handle for the orders topic.
// Messages are sent one at a time and without ordering keys; consumers
// dedupe on the event_id attribute.
type Publisher struct {
	client *pubsub.Client
	pub    *pubsub.Publisher
	topic  string
}

// NewPublisher connects and fails if the topic does not exist. extra options
// are appended after the credential options, e.g. a test gRPC connection.
func NewPublisher(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, extra ...option.ClientOption) (*Publisher, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topic := topicResourceName(project, cfg.OrdersTopic)
	if topic == "" {
		return nil, errNoOrdersTopic
	}

	client, err := pubsub.NewClient(ctx, project, append(credentialOptions(gcp), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: new client: %w", err)
	}
	p := &Publisher{client: client, topic: topic}
	if err := p.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	p.pub = client.Publisher(topic)
	// The outbox waits on every result, so batching would only add latency.
	p.pub.PublishSettings.CountThreshold = 1

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", topic), "pubsub publisher ready")
	}
	return p, nil
}

func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Publish blocks until the server acknowledges the message and returns its
// server-assigned id.
func (p *Publisher) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	if p == nil || p.pub == nil {
		return "", errNotInitialized
	}
	return p.pub.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

// Topic is the full resource name messages go to.
func (p *Publisher) Topic() string {
	if p == nil {
		return ""
	}
	return p.topic
}

// Ping checks the topic still exists.
func (p *Publisher) Ping(ctx context.Context) error {
	if p == nil || p.client == nil {
		return errNotInitialized
	}
	_, err := p.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: p.topic})
	switch {
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub: topic %s does not exist", p.topic)
	case err != nil:
		return fmt.Errorf("pubsub: get topic %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes outstanding messages and closes the client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	if p.pub != nil {
		p.pub.Stop()
	}
	return p.client.Close()
}

func topicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	case strings.TrimSpace(projectID) == "":
		return ""
	}
	return "projects/" + strings.TrimSpace(projectID) + "/topics/" + name
}
