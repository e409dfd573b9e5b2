package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

// Client calls plexify.sessions.v1.SessionService.
type Client struct {
	conn     *grpc.ClientConn
	Operator string // sent as x-operator on every call when set
}

// Dial connects to addr. Without options the connection is insecure.
func Dial(addr, operator string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, Operator: operator}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	if c.Operator != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, OperatorKey, c.Operator)
	}
	res := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, res); err != nil {
		return fromStatus(err)
	}
	if out == nil {
		return nil
	}
	return fromStruct(res, out)
}

// fromStatus turns a gRPC status back into an error of the matching kind.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var kind error
	switch st.Code() {
	case codes.AlreadyExists:
		kind = errors.ErrConflict
	case codes.InvalidArgument:
		kind = errors.ErrValidation
	case codes.NotFound:
		kind = errors.ErrNotFound
	case codes.Unavailable:
		kind = errors.ErrStorage
	case codes.DataLoss:
		kind = errors.ErrCompensation
	default:
		return err
	}
	return &remoteError{kind: kind, msg: st.Message()}
}

// remoteError keeps the server's message and reports its kind through Is.
type remoteError struct {
	kind error
	msg  string
}

func (e *remoteError) Error() string        { return e.msg }
func (e *remoteError) Is(target error) bool { return target == e.kind }

func (c *Client) StartSession(ctx context.Context, req models.StartSessionRequest) (*models.StartSessionResponse, error) {
	var out models.StartSessionResponse
	if err := c.invoke(ctx, MethodStartSession, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CompleteSession(ctx context.Context, id string, req models.CompleteSessionRequest) (*models.CompleteSessionResponse, error) {
	var out models.CompleteSessionResponse
	if err := c.invoke(ctx, MethodCompleteSession, CompleteRequest{SessionID: id, CompleteSessionRequest: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AbandonSession(ctx context.Context, id string, reason *string) (*models.Session, error) {
	var out models.Session
	if err := c.invoke(ctx, MethodAbandonSession, AbandonRequest{SessionID: id, Reason: reason}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetActiveSession returns nil without error when the operator has no active session.
func (c *Client) GetActiveSession(ctx context.Context) (*models.Session, error) {
	var out models.ActiveSessionResponse
	if err := c.invoke(ctx, MethodGetActiveSession, Empty{}, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

func (c *Client) ListSessions(ctx context.Context, req ListRequest) ([]models.Session, error) {
	var out ListResponse
	if err := c.invoke(ctx, MethodListSessions, req, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) GetSessionAgents(ctx context.Context, id string) ([]models.SessionAgent, error) {
	var out AgentsResponse
	if err := c.invoke(ctx, MethodGetSessionAgents, SessionRef{SessionID: id}, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

func (c *Client) RenderTemplate(ctx context.Context, req RenderRequest) (*models.RenderResponse, error) {
	var out models.RenderResponse
	if err := c.invoke(ctx, MethodRenderTemplate, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
