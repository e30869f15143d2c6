package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
)

func newFakeServer(t *testing.T) (*pstest.Server, []option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, []option.ClientOption{option.WithGRPCConn(conn)}
}

func createTopic(t *testing.T, opts []option.ClientOption, name string) {
	t.Helper()
	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: name})
	require.NoError(t, err)
}

func TestPublishSendsJSONWithAttributes(t *testing.T) {
	t.Parallel()

	srv, opts := newFakeServer(t)
	createTopic(t, opts, "projects/test-project/topics/reports")

	pub, err := Open(context.Background(), "test-project", "reports", opts...)
	require.NoError(t, err)

	event := crawler.ReportReadyEvent{
		JobID:    "job-1",
		Domain:   "acme.example",
		ReportID: "rep-1",
		Success:  true,
		BlobURI:  "gs://archive/acme.example/rep-1.json",
	}
	id, err := pub.Publish(context.Background(), "reports", event)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got crawler.ReportReadyEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, event, got)
	require.Equal(t, "report.ready", msgs[0].Attributes["event"])
	require.Equal(t, "acme.example", msgs[0].Attributes["domain"])
	require.Equal(t, "true", msgs[0].Attributes["success"])
}

func TestOpenMissingTopic(t *testing.T) {
	t.Parallel()

	_, opts := newFakeServer(t)
	_, err := Open(context.Background(), "test-project", "missing", opts...)
	require.Error(t, err)

	_, err = Open(context.Background(), "", "reports", opts...)
	require.Error(t, err)
}

func TestPublishWithoutPublisher(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "reports", map[string]string{"k": "v"})
	require.Error(t, err)
}

func TestCarrierKeys(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
