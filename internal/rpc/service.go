// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package rpc exposes a driver over gRPC so a long-lived AMPL session can be shared
// by several short-lived CLI invocations. Messages are the protobuf well-known types
// (wrapperspb, structpb, emptypb); the service descriptor is written by hand so no
// generated code is needed.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "iampl.v1.Session"

// Full method names.
const (
	MethodExecute     = "/" + ServiceName + "/Execute"
	MethodInterrupt   = "/" + ServiceName + "/Interrupt"
	MethodEntityNames = "/" + ServiceName + "/EntityNames"
	MethodValueOf     = "/" + ServiceName + "/ValueOf"
	MethodState       = "/" + ServiceName + "/State"
)

// KindKey is the trailer that carries the driver error kind next to the status code.
const KindKey = "iampl-error-kind"

// SessionServer is the server side of the session service.
//
// Execute answers {"output": string, "interrupted": bool}. ValueOf takes
// {"name": string, "key": [string...]} and answers the decoded display result.
// EntityNames answers {"entities": [{"name", "class"}...]}.
type SessionServer interface {
	Execute(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Interrupt(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	EntityNames(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ValueOf(context.Context, *structpb.Struct) (*structpb.Struct, error)
	State(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

// RegisterSessionServer attaches srv to s.
func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the session service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: unary(MethodExecute, func(s SessionServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.Execute(ctx, in)
		})},
		{MethodName: "Interrupt", Handler: unary(MethodInterrupt, func(s SessionServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.Interrupt(ctx, in)
		})},
		{MethodName: "EntityNames", Handler: unary(MethodEntityNames, func(s SessionServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.EntityNames(ctx, in)
		})},
		{MethodName: "ValueOf", Handler: unary(MethodValueOf, func(s SessionServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.ValueOf(ctx, in)
		})},
		{MethodName: "State", Handler: unary(MethodState, func(s SessionServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.State(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "iampl/v1/session.proto",
}

// unary builds the handler shape protoc-gen-go-grpc would generate for one method.
func unary[In any](method string, call func(SessionServer, context.Context, *In) (any, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SessionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SessionServer), ctx, req.(*In))
		}
		return interceptor(ctx, in, info, handler)
	}
}
