package pubsub

import (
	"context"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/angelmondragon/papshop-backend/pkg/config"
)

const project = "papshop-test"

func fakeClient(t *testing.T, topics ...string) (*gcppubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial fake server: %v", err)
	}
	client, err := gcppubsub.NewClient(context.Background(), project, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	for _, topic := range topics {
		_, err := client.TopicAdminClient.CreateTopic(context.Background(), &pubsubpb.Topic{Name: "projects/" + project + "/topics/" + topic})
		if err != nil {
			t.Fatalf("create topic %s: %v", topic, err)
		}
	}
	return client, srv
}

func TestPublishRoutesToOpenTopics(t *testing.T) {
	client, srv := fakeClient(t, "papshop-orders", "papshop-inventory")
	topics, err := Open(context.Background(), client, project, []string{"papshop-orders", "papshop-inventory"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer topics.Close()

	ctx := context.Background()
	res := topics.Publish(ctx, "papshop-orders", "order:1", []byte(`{"version":1}`), map[string]string{"event_type": "order_created"})
	if _, err := res.Get(ctx); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := topics.Publish(ctx, "papshop-coupons", "", []byte("{}"), nil).Get(ctx); err == nil {
		t.Fatal("unknown topic should fail")
	}
	topics.Resume("papshop-orders", "order:1")

	msgs := srv.Messages()
	if len(msgs) != 1 || string(msgs[0].Data) != `{"version":1}` || msgs[0].Attributes["event_type"] != "order_created" {
		t.Fatalf("server saw %+v", msgs)
	}
	if err := topics.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenRejectsMissingTopics(t *testing.T) {
	client, _ := fakeClient(t, "papshop-orders")
	defer client.Close()
	if _, err := Open(context.Background(), client, project, []string{"papshop-orders", "papshop-inventory"}); err == nil {
		t.Fatal("expected missing inventory topic to fail")
	}
	if _, err := Open(context.Background(), client, project, nil); err == nil {
		t.Fatal("expected empty topic list to fail")
	}
}

func TestDialRequiresProject(t *testing.T) {
	if _, err := Dial(context.Background(), config.GCPConfig{}, []string{"papshop-orders"}, nil); err == nil {
		t.Fatal("expected project id error")
	}
}
