// Package pubsub opens the Pub/Sub v2 client used by the outbox publisher and
// the notification worker, and checks that their resources exist at startup.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// Role selects which resource must exist for the process to be ready.
type Role int

const (
	// RolePublisher needs the orders topic.
	RolePublisher Role = iota
	// RoleSubscriber needs the orders subscription.
	RoleSubscriber
)

type kind string

const (
	kindTopic        kind = "topics"
	kindSubscription kind = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
	errNameRequired      = errors.New("pubsub resource name is required")
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	role      Role

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub for gcp.ProjectID and pings the resource role needs.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:     psClient,
		projectID:  project,
		cfg:        cfg,
		role:       role,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"pubsub_project":  project,
			"pubsub_ordering": cfg.Ordering,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping checks the topic (publisher) or subscription (subscriber) exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	if c.role == RoleSubscriber {
		return c.exists(ctx, kindSubscription, c.cfg.OrdersSubscription)
	}
	return c.exists(ctx, kindTopic, c.cfg.OrdersTopic)
}

func (c *Client) exists(ctx context.Context, k kind, name string) error {
	full, err := c.qualify(k, name)
	if err != nil {
		return err
	}
	switch k {
	case kindTopic:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	case kindSubscription:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	}
	switch {
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", strings.TrimSuffix(string(k), "s"), full)
	case err != nil:
		return fmt.Errorf("checking %s: %w", full, err)
	}
	return nil
}

// Publisher returns the cached publisher for a topic ID or full resource name.
// Publishers honour the configured message ordering.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full, err := c.qualify(kindTopic, name)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.publishers[full]
	if !ok {
		pub = c.client.Publisher(full)
		pub.EnableMessageOrdering = c.cfg.Ordering
		c.publishers[full] = pub
	}
	return pub
}

// Subscription returns a subscriber for a subscription ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full, err := c.qualify(kindSubscription, name)
	if err != nil {
		return nil
	}
	sub := c.client.Subscriber(full)
	if c.cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstanding
	}
	return sub
}

func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.OrdersSubscription)
}

// Close stops every cached publisher, flushing pending messages, then closes
// the underlying client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for full, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, full)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// qualify expands a short ID to projects/<project>/<kind>/<id>. Full names
// pass through only when they are of the expected kind.
func (c *Client) qualify(k kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errNameRequired
	}
	if strings.HasPrefix(name, "projects/") {
		parts := strings.Split(name, "/")
		if len(parts) != 4 || parts[1] == "" || parts[2] != string(k) || parts[3] == "" {
			return "", fmt.Errorf("%q is not a %s resource name", name, k)
		}
		return name, nil
	}
	if c == nil || c.projectID == "" {
		return "", errProjectIDRequired
	}
	return fmt.Sprintf("projects/%s/%s/%s", c.projectID, k, name), nil
}
