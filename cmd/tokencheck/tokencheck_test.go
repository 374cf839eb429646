package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/deepworx/go-commerceauth/pkg/auth"
	"github.com/deepworx/go-commerceauth/pkg/remote"
)

func newAuthority(t *testing.T, active bool) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/me" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(remote.User{ID: "u1", Username: "buyer01", Active: active})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mintToken(t *testing.T, roles ...string) string {
	t.Helper()
	return mintUserToken(t, "buyer", roles...)
}

func mintUserToken(t *testing.T, userType string, roles ...string) string {
	t.Helper()

	now := time.Now()
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"usr":     "buyer01",
		"cid":     "client-1",
		"usrtype": userType,
		"role":    roles,
		"exp":     now.Add(time.Hour).Unix(),
		"nbf":     now.Add(-time.Minute).Unix(),
	}).SignedString([]byte("portal-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVerify(t *testing.T) {
	srv := newAuthority(t, true)
	t.Setenv("COMMERCEAUTH_REMOTE__BASE_URL", srv.URL)
	t.Setenv("COMMERCEAUTH_LOG__LEVEL", "error")

	tok := mintToken(t, "Shopper", "MeAdmin")

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{name: "argument", args: []string{"verify", tok}},
		{name: "stdin", stdin: tok + "\n", args: []string{"verify"}},
		{name: "dash reads stdin", stdin: tok, args: []string{"verify", "-"}},
		{name: "matching role", args: []string{"verify", "--role", "Shopper", tok}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.stdin, tt.args...)
			if err != nil {
				t.Fatalf("verify error = %v", err)
			}

			var got identityView
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("unmarshal output %q: %v", out, err)
			}
			if got.Username != "buyer01" {
				t.Errorf("Username = %q, want %q", got.Username, "buyer01")
			}
			if got.ClientID != "client-1" {
				t.Errorf("ClientID = %q, want %q", got.ClientID, "client-1")
			}
			if got.CommerceRole != string(auth.Buyer) {
				t.Errorf("CommerceRole = %q, want %q", got.CommerceRole, auth.Buyer)
			}
			if len(got.Roles) != 2 {
				t.Errorf("Roles = %v, want 2 roles", got.Roles)
			}
		})
	}
}

func TestVerify_Rejected(t *testing.T) {
	tests := []struct {
		name   string
		active bool
		args   func(tok string) []string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "inactive user",
			active: false,
			args:   func(tok string) []string { return []string{"verify", tok} },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, auth.ErrUnauthorized) {
					t.Errorf("error = %v, want ErrUnauthorized", err)
				}
			},
		},
		{
			name:   "missing role",
			active: true,
			args:   func(tok string) []string { return []string{"verify", "-r", "OrderAdmin,ProductAdmin", tok} },
			check: func(t *testing.T, err error) {
				var roleErr *auth.InsufficientRolesError
				if !errors.As(err, &roleErr) {
					t.Fatalf("error = %v, want *InsufficientRolesError", err)
				}
				if len(roleErr.SufficientRoles) != 2 {
					t.Errorf("SufficientRoles = %v, want 2 roles", roleErr.SufficientRoles)
				}
			},
		},
		{
			name:   "malformed token",
			active: true,
			args:   func(string) []string { return []string{"verify", "not-a-token"} },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, auth.ErrUnauthorized) {
					t.Errorf("error = %v, want ErrUnauthorized", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newAuthority(t, tt.active)
			t.Setenv("COMMERCEAUTH_REMOTE__BASE_URL", srv.URL)
			t.Setenv("COMMERCEAUTH_LOG__LEVEL", "error")

			out, err := execute(t, "", tt.args(mintToken(t, "Shopper"))...)
			if err == nil {
				t.Fatalf("verify succeeded with output %q, want error", out)
			}
			tt.check(t, err)
		})
	}
}

func TestVerify_UnknownUserType(t *testing.T) {
	srv := newAuthority(t, true)
	t.Setenv("COMMERCEAUTH_REMOTE__BASE_URL", srv.URL)
	t.Setenv("COMMERCEAUTH_LOG__LEVEL", "error")

	out, err := execute(t, "", "verify", mintUserToken(t, "robot", "Shopper"))

	var typeErr *auth.UnknownUserTypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("error = %v, want *UnknownUserTypeError", err)
	}
	if typeErr.UserType != "robot" {
		t.Errorf("UserType = %q, want %q", typeErr.UserType, "robot")
	}
	if out != "" {
		t.Errorf("output = %q, want nothing printed", out)
	}
}

func TestVerify_ConfigError(t *testing.T) {
	t.Setenv("COMMERCEAUTH_REMOTE__BASE_URL", "")

	_, err := execute(t, "", "verify", "token")
	if !errors.Is(err, remote.ErrBaseURLRequired) {
		t.Errorf("error = %v, want ErrBaseURLRequired", err)
	}
}

func TestPurge_RequiresPostgres(t *testing.T) {
	srv := newAuthority(t, true)
	t.Setenv("COMMERCEAUTH_REMOTE__BASE_URL", srv.URL)
	t.Setenv("COMMERCEAUTH_LOG__LEVEL", "error")

	_, err := execute(t, "", "purge")
	if !errors.Is(err, errPurgeUnsupported) {
		t.Errorf("error = %v, want errPurgeUnsupported", err)
	}
}

func TestReadToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stdin string
		args  []string
		want  string
	}{
		{name: "argument", args: []string{" abc "}, want: "abc"},
		{name: "stdin", stdin: "abc\n", want: "abc"},
		{name: "dash", stdin: "  abc", args: []string{"-"}, want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := readToken(strings.NewReader(tt.stdin), tt.args)
			if err != nil {
				t.Fatalf("readToken() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("readToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
