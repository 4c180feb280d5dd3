package interceptors

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type loggedEvent struct {
	userID, action, resource, metadata string
}

// recordingAuditLogger implements audit.AuditLogger for interceptor tests.
type recordingAuditLogger struct {
	events []loggedEvent
}

func (r *recordingAuditLogger) LogEvent(_ context.Context, userID, action, resource, metadata string) {
	r.events = append(r.events, loggedEvent{userID, action, resource, metadata})
}

const setAdminMethod = "/pawsit.shell.v1.ShellService/SetAdmin"

func okHandler(context.Context, interface{}) (interface{}, error) { return "success", nil }

func actorOf(id string) ActorFunc {
	return func(context.Context) string { return id }
}

func TestAuditUnary_RecordsAuditedMethod(t *testing.T) {
	logger := &recordingAuditLogger{}
	interceptor := AuditUnary(logger, actorOf("user-1"), map[string]bool{setAdminMethod: true})

	resp, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{FullMethod: setAdminMethod}, okHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "success" {
		t.Errorf("response = %v, want %q", resp, "success")
	}
	if len(logger.events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(logger.events))
	}
	got := logger.events[0]
	want := loggedEvent{"user-1", "set_admin", "shell", "code=OK"}
	if got != want {
		t.Errorf("event = %+v, want %+v", got, want)
	}
}

func TestAuditUnary_SkipsUnlistedMethod(t *testing.T) {
	logger := &recordingAuditLogger{}
	interceptor := AuditUnary(logger, actorOf("user-1"), map[string]bool{setAdminMethod: true})

	if _, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{
		FullMethod: "/pawsit.shell.v1.ShellService/GetSession",
	}, okHandler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(logger.events) != 0 {
		t.Errorf("audit events = %d, want 0", len(logger.events))
	}
}

func TestAuditUnary_SignedOutNotRecorded(t *testing.T) {
	logger := &recordingAuditLogger{}
	interceptor := AuditUnary(logger, actorOf(""), map[string]bool{setAdminMethod: true})

	if _, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{FullMethod: setAdminMethod}, okHandler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(logger.events) != 0 {
		t.Errorf("audit events = %d, want 0", len(logger.events))
	}
}

func TestAuditUnary_HandlerErrorRecordedAndReturned(t *testing.T) {
	logger := &recordingAuditLogger{}
	interceptor := AuditUnary(logger, actorOf("user-1"), map[string]bool{setAdminMethod: true})
	denied := status.Error(codes.PermissionDenied, "not an administrator")

	_, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{FullMethod: setAdminMethod},
		func(context.Context, interface{}) (interface{}, error) { return nil, denied })
	if !errors.Is(err, denied) {
		t.Fatalf("err = %v, want handler error", err)
	}
	if len(logger.events) != 1 || logger.events[0].metadata != "code=PermissionDenied" {
		t.Errorf("events = %+v, want one PermissionDenied entry", logger.events)
	}
}

func TestAuditUnary_NilLogger(t *testing.T) {
	interceptor := AuditUnary(nil, actorOf("user-1"), map[string]bool{setAdminMethod: true})
	if _, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{FullMethod: setAdminMethod}, okHandler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
}

func TestClientIP(t *testing.T) {
	withMD := func(kv map[string]string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.New(kv))
	}
	withPeer := peer.NewContext(context.Background(), &peer.Peer{
		Addr: &net.TCPAddr{IP: net.ParseIP("192.168.1.3"), Port: 12345},
	})
	testCases := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"forwarded", withMD(map[string]string{"x-forwarded-for": "192.168.1.1"}), "192.168.1.1"},
		{"forwarded chain", withMD(map[string]string{"x-forwarded-for": "192.168.1.1, 10.0.0.1"}), "192.168.1.1"},
		{"forwarded whitespace", withMD(map[string]string{"x-forwarded-for": "  192.168.1.1  "}), "192.168.1.1"},
		{"real ip", withMD(map[string]string{"x-real-ip": "192.168.1.2"}), "192.168.1.2"},
		{"forwarded wins", withMD(map[string]string{"x-forwarded-for": "192.168.1.1", "x-real-ip": "192.168.1.2"}), "192.168.1.1"},
		{"peer", withPeer, "192.168.1.3"},
		{"unknown", context.Background(), "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClientIP(tc.ctx); got != tc.want {
				t.Errorf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
