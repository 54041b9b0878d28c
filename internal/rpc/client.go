// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package rpc

import (
	"context"
	"fmt"

	"iampl/cli/internal/display"
	"iampl/cli/internal/errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to a served session.
type Client struct {
	conn *grpc.ClientConn
}

// EntityInfo is one entry of an EntityNames answer.
type EntityInfo struct {
	Name  string
	Class string
}

// Dial connects to addr. The server listens on loopback, so the connection is
// plaintext unless opts say otherwise.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// invoke performs one unary call and turns a failed status back into a driver error.
func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	var trailer metadata.MD
	err := c.conn.Invoke(ctx, method, in, out, grpc.Trailer(&trailer))
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	if vals := trailer.Get(KindKey); len(vals) > 0 {
		return errors.New(errors.Kind(vals[0]), st.Message())
	}
	if st.Code() == codes.Unavailable {
		return errors.Wrap(errors.SessionTerminated, "server unavailable", err)
	}
	return err
}

// Execute runs code on the server. An interrupted statement returns its partial
// output with an Interrupted error, like Driver.Execute.
func (c *Client) Execute(ctx context.Context, code string) (string, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, MethodExecute, wrapperspb.String(code), out); err != nil {
		return "", err
	}
	output := out.GetFields()["output"].GetStringValue()
	if out.GetFields()["interrupted"].GetBoolValue() {
		return output, errors.New(errors.Interrupted, "statement interrupted")
	}
	return output, nil
}

// Interrupt asks the server to stop the statement in flight and returns the outcome.
func (c *Client) Interrupt(ctx context.Context) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, MethodInterrupt, &emptypb.Empty{}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Entities lists the entities known to the server session.
func (c *Client) Entities(ctx context.Context) ([]EntityInfo, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, MethodEntityNames, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var list []EntityInfo
	for _, v := range out.GetFields()["entities"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		list = append(list, EntityInfo{Name: f["name"].GetStringValue(), Class: f["class"].GetStringValue()})
	}
	return list, nil
}

// ValueOf reads name, or one element of it, as a plain map in the shape of
// display.Result.AsMap.
func (c *Client) ValueOf(ctx context.Context, name string, key display.Key) (map[string]any, error) {
	keys := make([]any, len(key))
	for i, k := range key {
		keys[i] = k
	}
	in, err := structpb.NewStruct(map[string]any{"name": name, "key": keys})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, MethodValueOf, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// State returns the server session state.
func (c *Client) State(ctx context.Context) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.invoke(ctx, MethodState, &emptypb.Empty{}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}
