package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/deepworx/go-commerceauth/pkg/auth"
	"github.com/deepworx/go-commerceauth/pkg/shutdown"
)

// identityView is the JSON shape printed for a verified token.
type identityView struct {
	Username      string    `json:"username"`
	ClientID      string    `json:"client_id"`
	UserType      string    `json:"user_type"`
	CommerceRole  string    `json:"commerce_role"`
	Roles         []string  `json:"roles"`
	APIURL        string    `json:"api_url,omitempty"`
	AuthURL       string    `json:"auth_url,omitempty"`
	KeyID         string    `json:"key_id,omitempty"`
	Anonymous     bool      `json:"anonymous"`
	PortalIssued  bool      `json:"portal_issued"`
	Impersonation bool      `json:"impersonation"`
	ExpiresAt     time.Time `json:"expires_at"`
	NotBefore     time.Time `json:"not_before,omitzero"`
	AnonOrderID   string    `json:"anon_order_id,omitempty"`
}

// newIdentityView fails with *auth.UnknownUserTypeError when the usrtype
// claim names no commerce role.
func newIdentityView(id *auth.Identity) (identityView, error) {
	role, err := id.CommerceRole()
	if err != nil {
		return identityView{}, err
	}

	v := identityView{
		Username:      id.Username(),
		CommerceRole:  role.String(),
		ClientID:      id.ClientID(),
		UserType:      id.UserType(),
		Roles:         id.AvailableRoles(),
		APIURL:        id.APIURL(),
		AuthURL:       id.AuthURL(),
		KeyID:         id.KeyID(),
		Anonymous:     id.IsAnonymous(),
		PortalIssued:  id.IsPortalIssued(),
		Impersonation: id.IsImpersonation(),
		ExpiresAt:     id.ExpiresAt(),
		NotBefore:     id.NotBefore(),
		AnonOrderID:   id.AnonOrderID(),
	}
	return v, nil
}

func newVerifyCmd(configPath *string) *cobra.Command {
	var roles []string

	cmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Verify a token and print its identity",
		Long: `Verifies the token given as an argument, or read from stdin when the
argument is omitted or "-". With --role, the token must carry at least one
of the listed roles.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			raw, err := readToken(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			a, err := setup(ctx, *configPath)
			defer func() {
				err = joinShutdown(cmd, err)
			}()
			if err != nil {
				return err
			}

			uc := a.verifier.NewUserContext()
			if err := uc.Verify(ctx, raw, roles...); err != nil {
				return fmt.Errorf("verify token: %w", err)
			}

			id, err := uc.Identity()
			if err != nil {
				return err
			}

			view, err := newIdentityView(id)
			if err != nil {
				return fmt.Errorf("describe identity: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		},
	}
	cmd.Flags().StringSliceVarP(&roles, "role", "r", nil, "required role; repeat or comma-separate for any-of")
	return cmd
}

func readToken(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read token from stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func joinShutdown(cmd *cobra.Command, err error) error {
	if serr := shutdown.Shutdown(cmd.Context()); serr != nil {
		if err == nil {
			return fmt.Errorf("shutdown: %w", serr)
		}
		cmd.PrintErrln("shutdown:", serr)
	}
	return err
}
