// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package rpc

import (
	"context"
	stderrors "errors"
	"net"
	"time"

	"iampl/cli/internal/display"
	"iampl/cli/internal/driver"
	"iampl/cli/internal/errors"
	"iampl/cli/internal/logging"

	"github.com/pterm/pterm"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server implements SessionServer on top of a driver.
type Server struct {
	d   *driver.Driver
	log *pterm.Logger
}

// NewServer wraps d. The driver must already be started.
func NewServer(d *driver.Driver, log *pterm.Logger) *Server {
	return &Server{d: d, log: log}
}

// Execute runs the statement. A cancelled call interrupts it.
func (s *Server) Execute(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	out, err := s.d.Execute(ctx, in.GetValue(), nil)
	interrupted := stderrors.Is(err, errors.Interrupted)
	if err != nil && !interrupted {
		return nil, toStatus(ctx, err)
	}
	return structpb.NewStruct(map[string]any{"output": out, "interrupted": interrupted})
}

func (s *Server) Interrupt(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	outcome, err := s.d.Interrupt(ctx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return wrapperspb.String(outcome.String()), nil
}

func (s *Server) EntityNames(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	list := s.d.Entities()
	entities := make([]any, 0, len(list))
	for _, e := range list {
		entities = append(entities, map[string]any{"name": e.Name, "class": string(e.Class)})
	}
	return structpb.NewStruct(map[string]any{"entities": entities})
}

func (s *Server) ValueOf(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name := in.GetFields()["name"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	var key display.Key
	for _, v := range in.GetFields()["key"].GetListValue().GetValues() {
		key = append(key, v.GetStringValue())
	}
	res, err := s.d.ValueOf(ctx, name, key)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return structpb.NewStruct(res.AsMap())
}

func (s *Server) State(_ context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(s.d.State().String()), nil
}

// codeFor maps driver error kinds onto gRPC status codes.
func codeFor(kind errors.Kind) codes.Code {
	switch kind {
	case errors.SessionBusy:
		return codes.Aborted
	case errors.NotStarted, errors.ExecutableNotFound, errors.StaleEntity:
		return codes.FailedPrecondition
	case errors.UnknownEntity:
		return codes.NotFound
	case errors.MalformedResponse:
		return codes.Internal
	case errors.StreamDesync, errors.SessionTerminated:
		return codes.Unavailable
	case errors.Interrupted:
		return codes.Canceled
	case errors.ConfigInvalid:
		return codes.InvalidArgument
	}
	return codes.Unknown
}

// toStatus converts err into a status error and records its kind in the trailer.
func toStatus(ctx context.Context, err error) error {
	kind := errors.KindOf(err)
	if kind != "" {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(KindKey, string(kind)))
	}
	msg := err.Error()
	var e *errors.E
	if stderrors.As(err, &e) {
		msg = e.Message
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
	}
	return status.Error(codeFor(kind), msg)
}

// loggingInterceptor logs every call with its duration and status code.
func loggingInterceptor(log *pterm.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("rpc", log.Args(
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed", time.Since(started).String(),
		))
		return resp, err
	}
}

// NewGRPCServer returns a grpc.Server with the session service registered.
func NewGRPCServer(d *driver.Driver, log *pterm.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if log == nil {
		log = logging.Discard()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	gs := grpc.NewServer(opts...)
	RegisterSessionServer(gs, NewServer(d, log))
	return gs
}

// Serve accepts connections on lis until ctx is done. A statement still running at
// that point is interrupted before the server stops.
func Serve(ctx context.Context, lis net.Listener, d *driver.Driver, log *pterm.Logger) error {
	if log == nil {
		log = logging.Discard()
	}
	gs := NewGRPCServer(d, log)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			if _, err := d.Interrupt(context.Background()); err != nil {
				log.Warn("interrupt on shutdown failed", log.Args("error", err.Error()))
			}
			gs.GracefulStop()
		case <-done:
		}
	}()

	log.Info("serving", log.Args("addr", lis.Addr().String()))
	err := gs.Serve(lis)
	close(done)
	<-stopped
	if stderrors.Is(err, grpc.ErrServerStopped) {
		err = nil
	}
	return err
}
