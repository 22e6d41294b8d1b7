package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	jwttoken "veto/internal/jwt_token"
)

// NewTokenCommand creates the token command, which issues a bearer token
// attributing API calls to an actor in the audit log.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <actor_id>",
		Short: "Issue an actor bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.JWTSigningKey == "" {
				return errors.New("VETO_JWT_SIGNING_KEY is not set")
			}
			service := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer)
			return runToken(rootOpts, cmd.OutOrStdout(), service, args[0], ttl)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}

type tokenResult struct {
	ActorID   string `json:"actor_id"`
	Token     string `json:"token"`
	ExpiresIn string `json:"expires_in"`
}

func runToken(opts *RootOptions, w io.Writer, service *jwttoken.JWTService, actorID string, ttl time.Duration) error {
	token, err := service.IssueActorToken(actorID, ttl)
	if err != nil {
		return err
	}
	res := tokenResult{ActorID: actorID, Token: token, ExpiresIn: ttl.String()}
	return opts.output(w, res, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, res.Token)
		return err
	})
}
