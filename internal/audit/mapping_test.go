package audit

import "testing"

func TestParseFullMethod(t *testing.T) {
	testCases := []struct {
		method string
		want   ActionResource
	}{
		{"/pawsit.shell.v1.ShellService/SignIn", ActionResource{"sign_in", "shell"}},
		{"/pawsit.shell.v1.ShellService/SendPasswordReset", ActionResource{"send_password_reset", "shell"}},
		{"/pawsit.shell.v1.ShellService/OpenURL", ActionResource{"open_url", "shell"}},
		{"/pawsit.shell.v1.ShellService/SetAdmin", ActionResource{"set_admin", "shell"}},
		{"/grpc.health.v1.Health/Check", ActionResource{"check", "health"}},
		{"/NoPackage/Watch", ActionResource{"watch", "unknown"}},
		{"no-slash", ActionResource{"unknown", "unknown"}},
		{"/pawsit.shell.v1.ShellService/", ActionResource{"unknown", "unknown"}},
	}
	for _, tc := range testCases {
		if got := ParseFullMethod(tc.method); got != tc.want {
			t.Errorf("ParseFullMethod(%q) = %+v, want %+v", tc.method, got, tc.want)
		}
	}
}
