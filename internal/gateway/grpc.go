// ABOUTME: Messaging gRPC service implementation for the control plane
// ABOUTME: Validates requests, delegates to the store, hands sends to the router

package gateway

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/joshdirkx/chat-rs/internal/router"
	"github.com/joshdirkx/chat-rs/internal/store"
	pb "github.com/joshdirkx/chat-rs/proto/messaging"
)

// messagingServer implements the Messaging gRPC service.
type messagingServer struct {
	pb.UnimplementedMessagingServer
	store  store.Store
	router *router.Router
	logger *slog.Logger
}

// newMessagingServer creates a new Messaging service instance.
func newMessagingServer(s store.Store, rt *router.Router, logger *slog.Logger) *messagingServer {
	return &messagingServer{
		store:  s,
		router: rt,
		logger: logger,
	}
}

// toStatus maps store errors onto gRPC status codes at the service rim.
// Internals never see status codes; callers never see raw sentinel errors.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrStorageUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// CreateUser persists a new user and returns the stored identity.
func (s *messagingServer) CreateUser(ctx context.Context, req *pb.CreateUserRequest) (*pb.CreateUserResponse, error) {
	user, err := s.store.CreateUser(ctx, req.GetFirstName(), req.GetLastName())
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.Info("user created", "user_id", user.ID)
	return &pb.CreateUserResponse{
		UserId:    user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, nil
}

// GetUser looks up a user by id. Unknown ids fail; there are no placeholder
// responses.
func (s *messagingServer) GetUser(ctx context.Context, req *pb.GetUserRequest) (*pb.GetUserResponse, error) {
	user, err := s.store.GetUser(ctx, req.GetUserId())
	if err != nil {
		return nil, toStatus(err)
	}

	return &pb.GetUserResponse{
		UserId:    user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}, nil
}

// SendMessage persists the message and returns once it is durable. Delivery
// to any live recipient connection happens asynchronously.
func (s *messagingServer) SendMessage(ctx context.Context, req *pb.SendMessageRequest) (*pb.SendMessageResponse, error) {
	msg, err := s.router.Submit(ctx, req.GetSenderId(), req.GetRecipientId(), req.GetMessageContents())
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.Debug("message accepted",
		"message_id", msg.ID,
		"sender_id", msg.SenderID,
		"recipient_id", msg.RecipientID,
	)
	return &pb.SendMessageResponse{MessageId: msg.ID}, nil
}

// GetMessage looks up a message by id, including its delivery status.
func (s *messagingServer) GetMessage(ctx context.Context, req *pb.GetMessageRequest) (*pb.GetMessageResponse, error) {
	msg, err := s.store.GetMessage(ctx, req.GetMessageId())
	if err != nil {
		return nil, toStatus(err)
	}

	return &pb.GetMessageResponse{
		MessageId:       msg.ID,
		SenderId:        msg.SenderID,
		RecipientId:     msg.RecipientID,
		MessageContents: msg.Contents,
		Status:          msg.Status,
		CreatedAt:       timestamppb.New(msg.CreatedAt),
	}, nil
}
