// ABOUTME: go:generate anchor for the messaging protobuf stubs
// ABOUTME: Regenerates proto/messaging from messaging.proto

// Package proto holds the wire schema and its generated Go stubs.
//
// Requires protoc with protoc-gen-go and protoc-gen-go-grpc on PATH.
package proto

//go:generate protoc --go_out=. --go_opt=module=github.com/joshdirkx/chat-rs/proto --go-grpc_out=. --go-grpc_opt=module=github.com/joshdirkx/chat-rs/proto messaging.proto
