// ABOUTME: Tests for the Messaging gRPC service implementation
// ABOUTME: Exercises the service directly and checks error-to-status mapping

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joshdirkx/chat-rs/internal/registry"
	"github.com/joshdirkx/chat-rs/internal/router"
	"github.com/joshdirkx/chat-rs/internal/store"
	pb "github.com/joshdirkx/chat-rs/proto/messaging"
)

func newTestService(t *testing.T) (*messagingServer, *store.SQLiteStore) {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(logger)
	rt := router.New(s, reg, logger)
	return newMessagingServer(s, rt, logger), s
}

func TestCreateUser(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.CreateUser(context.Background(), &pb.CreateUserRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	assert.Greater(t, resp.GetUserId(), int64(0))
	assert.Equal(t, "Ada", resp.GetFirstName())
	assert.Equal(t, "Lovelace", resp.GetLastName())
}

func TestCreateUser_InvalidArgument(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateUser(context.Background(), &pb.CreateUserRequest{
		FirstName: "",
		LastName:  "Lovelace",
	})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetUser(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.CreateUser(context.Background(), &pb.CreateUserRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)

	got, err := svc.GetUser(context.Background(), &pb.GetUserRequest{UserId: created.GetUserId()})
	require.NoError(t, err)
	assert.Equal(t, created.GetUserId(), got.GetUserId())
	assert.Equal(t, "Ada", got.GetFirstName())
}

func TestGetUser_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetUser(context.Background(), &pb.GetUserRequest{UserId: 9999})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestSendMessage(t *testing.T) {
	svc, s := newTestService(t)

	ctx := context.Background()
	sender, err := s.CreateUser(ctx, "Ada", "Lovelace")
	require.NoError(t, err)
	recipient, err := s.CreateUser(ctx, "Alan", "Turing")
	require.NoError(t, err)

	resp, err := svc.SendMessage(ctx, &pb.SendMessageRequest{
		SenderId:        sender.ID,
		RecipientId:     recipient.ID,
		MessageContents: "hello",
	})
	require.NoError(t, err)
	require.Greater(t, resp.GetMessageId(), int64(0))

	// Durable immediately; with no live connection it stays pending.
	got, err := svc.GetMessage(ctx, &pb.GetMessageRequest{MessageId: resp.GetMessageId()})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.GetMessageContents())
	assert.Equal(t, store.StatusPending, got.GetStatus())
	assert.NotNil(t, got.GetCreatedAt())
}

func TestSendMessage_ErrorCodes(t *testing.T) {
	svc, s := newTestService(t)

	ctx := context.Background()
	sender, err := s.CreateUser(ctx, "Ada", "Lovelace")
	require.NoError(t, err)

	cases := []struct {
		name string
		req  *pb.SendMessageRequest
		want codes.Code
	}{
		{
			name: "self send",
			req: &pb.SendMessageRequest{
				SenderId: sender.ID, RecipientId: sender.ID, MessageContents: "hi",
			},
			want: codes.InvalidArgument,
		},
		{
			name: "empty contents",
			req: &pb.SendMessageRequest{
				SenderId: sender.ID, RecipientId: sender.ID + 1, MessageContents: "",
			},
			want: codes.InvalidArgument,
		},
		{
			name: "unknown recipient",
			req: &pb.SendMessageRequest{
				SenderId: sender.ID, RecipientId: 9999, MessageContents: "hi",
			},
			want: codes.NotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SendMessage(ctx, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.want, status.Code(err))
		})
	}
}

func TestGetMessage_NotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetMessage(context.Background(), &pb.GetMessageRequest{MessageId: 9999})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGetMessage_ReflectsDeliveryStatus(t *testing.T) {
	svc, s := newTestService(t)

	ctx := context.Background()
	sender, err := s.CreateUser(ctx, "Ada", "Lovelace")
	require.NoError(t, err)
	recipient, err := s.CreateUser(ctx, "Alan", "Turing")
	require.NoError(t, err)

	resp, err := svc.SendMessage(ctx, &pb.SendMessageRequest{
		SenderId:        sender.ID,
		RecipientId:     recipient.ID,
		MessageContents: "hello",
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkDelivered(ctx, resp.GetMessageId(), store.StatusDelivered))

	require.Eventually(t, func() bool {
		got, err := svc.GetMessage(ctx, &pb.GetMessageRequest{MessageId: resp.GetMessageId()})
		return err == nil && got.GetStatus() == store.StatusDelivered
	}, 2*time.Second, 10*time.Millisecond)
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"validation", store.ErrValidation, codes.InvalidArgument},
		{"not found", store.ErrNotFound, codes.NotFound},
		{"unavailable", store.ErrStorageUnavailable, codes.Unavailable},
		{"wrapped not found", errors.Join(errors.New("ctx"), store.ErrNotFound), codes.NotFound},
		{"unknown", errors.New("disk on fire"), codes.Internal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := toStatus(tc.err)
			assert.Equal(t, tc.want, status.Code(err))
		})
	}

	assert.NoError(t, toStatus(nil))
}
