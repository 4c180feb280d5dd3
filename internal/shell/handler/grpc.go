// Package handler implements the gRPC ShellService the native renderer talks to:
// a stream of navigation commands plus the user actions that feed the session.
package handler

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"pawsit/agent/internal/admin"
	identitydomain "pawsit/agent/internal/identity/domain"
	"pawsit/agent/internal/navigation"
	profiledomain "pawsit/agent/internal/profile/domain"
	"pawsit/agent/internal/session"
)

// watchBuffer is how many live commands a slow renderer may fall behind before
// its stream is closed with ResourceExhausted; reconnecting replays the stack.
// The initial replay is not counted against it.
const watchBuffer = 64

// Auth is the auth client. client.Client implements it.
type Auth interface {
	SignIn(ctx context.Context, email, password string) (*identitydomain.Principal, error)
	Adopt(ctx context.Context, ts *identitydomain.TokenSet) (*identitydomain.Principal, error)
	SignOut(ctx context.Context)
}

// Registrar creates an account with a profile. Nil in OIDC mode.
type Registrar interface {
	Register(ctx context.Context, email, password, displayName string, role profiledomain.Role) (*identitydomain.TokenSet, error)
}

// PasswordRecovery is the password reset flow. Nil in OIDC mode.
type PasswordRecovery interface {
	SendPasswordReset(ctx context.Context, email string) error
	VerifyPasswordResetCode(ctx context.Context, code string) (string, error)
	ConfirmPasswordReset(ctx context.Context, code, newPassword string) error
}

// AdminConsole opens guarded admin views. Nil when no local accounts exist.
type AdminConsole interface {
	Open(ctx context.Context) (*admin.View, error)
}

// URLPusher accepts runtime deep links. deeplink.Feed implements it.
type URLPusher interface {
	Push(raw string)
}

// NavigationSource streams navigation commands. navigation.Stack implements it.
type NavigationSource interface {
	Subscribe(fn func(navigation.Command)) (unsubscribe func())
}

// SessionReader exposes the resolver's state. session.Resolver implements it.
type SessionReader interface {
	Snapshot() session.State
}

// Deps holds the collaborators of the shell server. Auth is required; any other
// nil dependency makes the RPCs that need it return Unimplemented.
type Deps struct {
	Auth      Auth
	Registrar Registrar
	Recovery  PasswordRecovery
	Console   AdminConsole
	Links     URLPusher
	Nav       NavigationSource
	Session   SessionReader
	Log       *slog.Logger
}

// Server implements ShellServiceServer.
type Server struct {
	d   Deps
	log *slog.Logger
}

var _ ShellServiceServer = (*Server)(nil)

// NewServer returns a ShellService server.
func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{d: d, log: log}
}

// Watch streams the current stack as replay commands, then every change.
func (s *Server) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.d.Nav == nil {
		return status.Error(codes.Unimplemented, "navigation not configured")
	}
	q := newWatchQueue(watchBuffer)
	unsubscribe := s.d.Nav.Subscribe(q.push)
	defer unsubscribe()

	ctx := stream.Context()
	for {
		c, ok, err := q.pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		msg, err := commandToStruct(c)
		if err != nil {
			return status.Error(codes.Internal, "failed to encode navigation command")
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
	}
}

// watchQueue buffers commands for one Watch stream. Replay commands are always
// accepted; live commands beyond limit mark the stream as lagged.
type watchQueue struct {
	limit  int
	mu     sync.Mutex
	items  []navigation.Command
	live   int
	lagged bool
	notify chan struct{}
}

func newWatchQueue(limit int) *watchQueue {
	return &watchQueue{limit: limit, notify: make(chan struct{}, 1)}
}

func (q *watchQueue) push(c navigation.Command) {
	q.mu.Lock()
	switch {
	case q.lagged:
	case c.Replay:
		q.items = append(q.items, c)
	case q.live >= q.limit:
		q.lagged = true
	default:
		q.items = append(q.items, c)
		q.live++
	}
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop returns the next command. ok is false when ctx ends; err is set once
// the consumer has lagged and the queued commands are drained.
func (q *watchQueue) pop(ctx context.Context) (navigation.Command, bool, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			c := q.items[0]
			q.items = q.items[1:]
			if !c.Replay {
				q.live--
			}
			q.mu.Unlock()
			return c, true, nil
		}
		lagged := q.lagged
		q.mu.Unlock()
		if lagged {
			return navigation.Command{}, false, status.Error(codes.ResourceExhausted, "renderer fell behind; watch again")
		}
		select {
		case <-ctx.Done():
			return navigation.Command{}, false, nil
		case <-q.notify:
		}
	}
}

// GetSession returns the resolver's current state.
func (s *Server) GetSession(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.d.Session == nil {
		return nil, status.Error(codes.Unimplemented, "session resolver not configured")
	}
	st := s.d.Session.Snapshot()
	out, err := structpb.NewStruct(map[string]any{
		"phase":       st.Phase.String(),
		"destination": string(st.Destination),
		"userId":      st.UserID,
		"elevated":    st.Elevated,
		"role":        string(st.Role),
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode session")
	}
	return out, nil
}

// OpenURL hands a URL the OS delivered to the running app to the deep-link feed.
func (s *Server) OpenURL(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	raw := strings.TrimSpace(req.GetValue())
	if raw == "" {
		return nil, status.Error(codes.InvalidArgument, "url required")
	}
	if s.d.Links == nil {
		return nil, status.Error(codes.Unimplemented, "deep links not configured")
	}
	s.d.Links.Push(raw)
	return wrapperspb.Bool(true), nil
}

// SignIn authenticates with email and password.
func (s *Server) SignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	email, password := field(req, "email"), field(req, "password")
	if email == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password required")
	}
	p, err := s.d.Auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, s.toStatus(ctx, "SignIn", err)
	}
	return principalToStruct(p)
}

// SignUp registers an account with a role and signs it in.
func (s *Server) SignUp(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.d.Registrar == nil {
		return nil, status.Error(codes.Unimplemented, "sign-up is handled by the identity provider")
	}
	role := profiledomain.ParseRole(field(req, "role"))
	ts, err := s.d.Registrar.Register(ctx, field(req, "email"), field(req, "password"), field(req, "displayName"), role)
	if err != nil {
		return nil, s.toStatus(ctx, "SignUp", err)
	}
	p, err := s.d.Auth.Adopt(ctx, ts)
	if err != nil {
		return nil, s.toStatus(ctx, "SignUp", err)
	}
	return principalToStruct(p)
}

// SignOut ends the local session. It always succeeds.
func (s *Server) SignOut(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.d.Auth.SignOut(ctx)
	return &emptypb.Empty{}, nil
}

// SendPasswordReset mails a reset link. Unknown emails succeed.
func (s *Server) SendPasswordReset(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if s.d.Recovery == nil {
		return nil, status.Error(codes.Unimplemented, "password reset is handled by the identity provider")
	}
	if err := s.d.Recovery.SendPasswordReset(ctx, req.GetValue()); err != nil {
		return nil, s.toStatus(ctx, "SendPasswordReset", err)
	}
	return &emptypb.Empty{}, nil
}

// VerifyPasswordResetCode returns the email a reset code belongs to.
func (s *Server) VerifyPasswordResetCode(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if s.d.Recovery == nil {
		return nil, status.Error(codes.Unimplemented, "password reset is handled by the identity provider")
	}
	email, err := s.d.Recovery.VerifyPasswordResetCode(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus(ctx, "VerifyPasswordResetCode", err)
	}
	return wrapperspb.String(email), nil
}

// ConfirmPasswordReset sets a new password using the code from the link.
func (s *Server) ConfirmPasswordReset(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if s.d.Recovery == nil {
		return nil, status.Error(codes.Unimplemented, "password reset is handled by the identity provider")
	}
	code := field(req, "oobCode")
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "oobCode required")
	}
	if err := s.d.Recovery.ConfirmPasswordReset(ctx, code, field(req, "newPassword")); err != nil {
		return nil, s.toStatus(ctx, "ConfirmPasswordReset", err)
	}
	return &emptypb.Empty{}, nil
}

// OpenAdminConsole mounts a guarded console and returns one page of accounts.
func (s *Server) OpenAdminConsole(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.d.Console == nil {
		return nil, status.Error(codes.Unimplemented, "admin console not available")
	}
	view, err := s.d.Console.Open(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, "OpenAdminConsole", err)
	}
	defer view.Close()
	entries, err := view.Accounts(ctx, int32(number(req, "limit")), int32(number(req, "offset")))
	if err != nil {
		return nil, s.toStatus(ctx, "OpenAdminConsole", err)
	}
	out, err := entriesToStruct(entries)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode accounts")
	}
	return out, nil
}

// SetAdmin grants or revokes the admin claim on another account.
func (s *Server) SetAdmin(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if s.d.Console == nil {
		return nil, status.Error(codes.Unimplemented, "admin console not available")
	}
	accountID := field(req, "accountId")
	if accountID == "" {
		return nil, status.Error(codes.InvalidArgument, "accountId required")
	}
	view, err := s.d.Console.Open(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, "SetAdmin", err)
	}
	defer view.Close()
	if err := view.SetAdmin(ctx, accountID, boolean(req, "admin")); err != nil {
		return nil, s.toStatus(ctx, "SetAdmin", err)
	}
	return &emptypb.Empty{}, nil
}

// SetRole moves another account between owner and sitter.
func (s *Server) SetRole(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if s.d.Console == nil {
		return nil, status.Error(codes.Unimplemented, "admin console not available")
	}
	accountID := field(req, "accountId")
	if accountID == "" {
		return nil, status.Error(codes.InvalidArgument, "accountId required")
	}
	view, err := s.d.Console.Open(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, "SetRole", err)
	}
	defer view.Close()
	if err := view.SetRole(ctx, accountID, profiledomain.ParseRole(field(req, "role"))); err != nil {
		return nil, s.toStatus(ctx, "SetRole", err)
	}
	return &emptypb.Empty{}, nil
}

func field(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func number(req *structpb.Struct, key string) float64 {
	return req.GetFields()[key].GetNumberValue()
}

func boolean(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

func principalToStruct(p *identitydomain.Principal) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]any{"uid": p.UID, "email": p.Email})
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode principal")
	}
	return out, nil
}

func commandToStruct(c navigation.Command) (*structpb.Struct, error) {
	params := make(map[string]any, len(c.Route.Params))
	for k, v := range c.Route.Params {
		params[k] = v
	}
	return structpb.NewStruct(map[string]any{
		"seq":    float64(c.Seq),
		"kind":   string(c.Kind),
		"screen": c.Route.Screen,
		"params": params,
		"replay": c.Replay,
	})
}

func entriesToStruct(entries []admin.Entry) (*structpb.Struct, error) {
	list := make([]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, map[string]any{
			"accountId":   e.AccountID,
			"email":       e.Email,
			"displayName": e.DisplayName,
			"role":        string(e.Role),
			"hasProfile":  e.HasProfile,
			"admin":       e.Admin,
			"disabled":    e.Disabled,
		})
	}
	return structpb.NewStruct(map[string]any{"accounts": list})
}
