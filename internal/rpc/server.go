// Package rpc exposes the session lifecycle as the gRPC service
// plexify.sessions.v1.SessionService. Requests and responses are
// google.protobuf.Struct values, so no generated code is needed.
package rpc

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
	"github.com/Plexify-AI/plexifybid-sub001/internal/otel"
	"github.com/Plexify-AI/plexifybid-sub001/internal/prompt"
	"github.com/Plexify-AI/plexifybid-sub001/internal/services"
	"github.com/Plexify-AI/plexifybid-sub001/internal/wire"
	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "plexify.sessions.v1.SessionService"

// OperatorKey is the metadata key naming the operator a call acts for.
const OperatorKey = "x-operator"

// Method names.
const (
	MethodStartSession     = "StartSession"
	MethodCompleteSession  = "CompleteSession"
	MethodAbandonSession   = "AbandonSession"
	MethodGetActiveSession = "GetActiveSession"
	MethodListSessions     = "ListSessions"
	MethodGetSessionAgents = "GetSessionAgents"
	MethodRenderTemplate   = "RenderTemplate"
)

// Server implements the session service over Services.
type Server struct {
	Services *services.Services
	Operator string // used when a call carries no x-operator metadata
}

// Register adds the session service to gs.
func Register(gs *grpc.Server, s *Server) {
	gs.RegisterService(&serviceDesc, s)
}

// CodeFor maps an error kind to its gRPC code.
func CodeFor(k errors.Kind) codes.Code {
	switch k {
	case errors.KindConflict:
		return codes.AlreadyExists
	case errors.KindValidation:
		return codes.InvalidArgument
	case errors.KindNotFound:
		return codes.NotFound
	case errors.KindStorage:
		return codes.Unavailable
	case errors.KindCompensation:
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// toStatus converts err to a status. Storage and internal failures are logged
// and sent without their cause.
func toStatus(method string, err error) error {
	if err == nil {
		return nil
	}
	kind := errors.KindOf(err)
	msg := err.Error()
	if !errors.IsUserFacing(err) {
		slog.Error("rpc failed", "method", method, "kind", kind, "err", err)
		msg = string(kind) + " error"
		var cf *errors.CompensationError
		if errors.As(err, &cf) {
			msg = "session start failed and could not be rolled back (orphaned " + cf.Orphan + ")"
		}
	}
	return status.Error(CodeFor(kind), msg)
}

func (s *Server) operator(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(OperatorKey); len(v) > 0 && strings.TrimSpace(v[0]) != "" {
			return strings.TrimSpace(v[0])
		}
	}
	return s.Operator
}

// call decodes in into a fresh Req, runs fn and encodes its result.
func call[Req any](method string, in *structpb.Struct, fn func(Req) (any, error)) (*structpb.Struct, error) {
	var req Req
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request: "+err.Error())
	}
	out, err := fn(req)
	if err != nil {
		return nil, toStatus(method, err)
	}
	res, err := toStruct(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}

func (s *Server) StartSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(MethodStartSession, in, func(req models.StartSessionRequest) (any, error) {
		res, err := s.Services.Sessions.Start(ctx, s.operator(ctx), wire.ToStartRequest(req))
		if err != nil {
			return nil, err
		}
		return models.StartSessionResponse{Session: wire.Session(res.Session), ContextIn: res.ContextIn}, nil
	})
}

func (s *Server) CompleteSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(MethodCompleteSession, in, func(req CompleteRequest) (any, error) {
		res, err := s.Services.Sessions.Complete(ctx, s.operator(ctx), req.SessionID, wire.ToCompletion(req.CompleteSessionRequest))
		if err != nil {
			return nil, err
		}
		return models.CompleteSessionResponse{Session: wire.Session(res.Session), HandoffPrompt: res.HandoffPrompt}, nil
	})
}

func (s *Server) AbandonSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(MethodAbandonSession, in, func(req AbandonRequest) (any, error) {
		sess, err := s.Services.Sessions.Abandon(ctx, s.operator(ctx), req.SessionID, req.Reason)
		if err != nil {
			return nil, err
		}
		return wire.Session(*sess), nil
	})
}

func (s *Server) GetActiveSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(MethodGetActiveSession, in, func(Empty) (any, error) {
		sess, err := s.Services.Sessions.Active(ctx, s.operator(ctx))
		if err != nil {
			return nil, err
		}
		return models.ActiveSessionResponse{Session: wire.SessionPtr(sess)}, nil
	})
}

func (s *Server) ListSessions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(MethodListSessions, in, func(req ListRequest) (any, error) {
		operator := s.operator(ctx)
		if req.All {
			operator = ""
		}
		f := wire.ToSessionFilter(models.SessionQuery{
			Status:      req.Status,
			SessionType: req.SessionType,
			AgentID:     req.AgentID,
			From:        req.From,
			To:          req.To,
			Limit:       req.Limit,
		})
		list, err := s.Services.Sessions.List(ctx, operator, f)
		if err != nil {
			return nil, err
		}
		return ListResponse{Sessions: wire.Sessions(list)}, nil
	})
}

func (s *Server) GetSessionAgents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(MethodGetSessionAgents, in, func(req SessionRef) (any, error) {
		list, err := s.Services.Sessions.Agents(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		return AgentsResponse{Agents: wire.LinkedAgents(list)}, nil
	})
}

func (s *Server) RenderTemplate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return call(MethodRenderTemplate, in, func(req RenderRequest) (any, error) {
		opts := wire.RenderOptions(req.RenderRequest)
		if req.Slug != "" {
			res, err := s.Services.Catalog.UseTemplate(ctx, req.Slug, req.Values, opts...)
			if err != nil {
				return nil, err
			}
			return models.RenderResponse{Rendered: res.Rendered, Warnings: res.Warnings, UsageCount: res.UsageCount}, nil
		}
		vars, err := wire.ParseVariables(req.Variables)
		if err != nil {
			return nil, errors.NewValidationError(err.Error()).WithField("variables").WithCause(err)
		}
		res := prompt.Render(req.Body, req.Values, vars, opts...)
		otel.RecordRenderWarnings(ctx, "inline", len(res.Warnings))
		return models.RenderResponse{Rendered: res.Rendered, Warnings: res.Warnings}, nil
	})
}

// SessionService is the server API of plexify.sessions.v1.SessionService.
type SessionService interface {
	StartSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AbandonSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetActiveSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSessionAgents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenderTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ SessionService = (*Server)(nil)

// unary adapts one SessionService method to a grpc.MethodDesc handler.
func unary(name string, fn func(SessionService, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(SessionService)
			if interceptor == nil {
				return fn(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(svc, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionService)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodStartSession, SessionService.StartSession),
		unary(MethodCompleteSession, SessionService.CompleteSession),
		unary(MethodAbandonSession, SessionService.AbandonSession),
		unary(MethodGetActiveSession, SessionService.GetActiveSession),
		unary(MethodListSessions, SessionService.ListSessions),
		unary(MethodGetSessionAgents, SessionService.GetSessionAgents),
		unary(MethodRenderTemplate, SessionService.RenderTemplate),
	},
	Metadata: "plexify/sessions/v1/session_service.proto",
}
