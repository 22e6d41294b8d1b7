package cli

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"veto/internal/crypto"
	"veto/internal/receipt"
	receiptmodels "veto/internal/receipt/models"
	"veto/internal/storage"
	"veto/internal/storage/postgres"
	id "veto/pkg/domain"
	vstrings "veto/pkg/platform/strings"
)

// ErrChainInvalid is returned after a failed verification has been printed,
// so the process exits non-zero.
var ErrChainInvalid = errors.New("receipt chain is invalid")

type verifyOptions struct {
	databaseURL string
	publicKeys  []string
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify <pointer_id>",
		Short: "Verify a pointer's receipt chain",
		Long: `Verify a pointer's receipt chain directly against the database.

Every receipt is re-canonicalized, re-hashed and checked against its
signature and predecessor. Signatures are checked against the --public-key
values, or against the configured signing key when none are given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyCommand(cmd.Context(), rootOpts, opts, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", "", "Postgres URL (defaults to VETO_DATABASE_URL)")
	cmd.Flags().StringSliceVar(&opts.publicKeys, "public-key", nil, "trusted base64 Ed25519 public key (repeatable)")

	return cmd
}

func runVerifyCommand(ctx context.Context, rootOpts *RootOptions, opts *verifyOptions, rawID string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	pointerID, err := id.ParsePointerID(rawID)
	if err != nil {
		return err
	}

	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	url := opts.databaseURL
	if url == "" {
		url = cfg.Database.URL
	}
	if url == "" {
		return errors.New("no database URL: pass --database-url or set VETO_DATABASE_URL")
	}

	verifier, err := trustedKeys(opts.publicKeys, cfg.Signing.PrivateKey)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, url)
	if err != nil {
		return err
	}
	defer db.Close()

	return runVerify(ctx, rootOpts, w, postgres.New(db).Stores().Receipts, verifier, pointerID)
}

// trustedKeys builds the verifier from explicit public keys, falling back to
// the public half of the configured signing key.
func trustedKeys(publicKeys []string, signingKey string) (*crypto.Ed25519Verifier, error) {
	publicKeys = vstrings.DedupeAndTrim(publicKeys)
	if len(publicKeys) == 0 {
		if signingKey == "" {
			return nil, errors.New("no trusted key: pass --public-key or set VETO_SIGNING_PRIVATE_KEY")
		}
		signer, err := crypto.ParseEd25519Signer(signingKey)
		if err != nil {
			return nil, err
		}
		return crypto.NewEd25519Verifier(signer.PublicKey()), nil
	}

	verifier := crypto.NewEd25519Verifier()
	for _, encoded := range publicKeys {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode public key: %w", err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("public key must decode to %d bytes, got %d", ed25519.PublicKeySize, len(raw))
		}
		verifier.AddKey(ed25519.PublicKey(raw))
	}
	return verifier, nil
}

func runVerify(ctx context.Context, opts *RootOptions, w io.Writer, receipts storage.ReceiptStore, verifier crypto.Verifier, pointerID id.PointerID) error {
	// Verification never signs, so the chain carries no signer.
	chain := receipt.New(nil, crypto.NewRegistry(verifier))
	v, err := chain.VerifyChain(ctx, receipts, pointerID)
	if err != nil {
		return err
	}
	if err := opts.output(w, v, func(w io.Writer) error { return printVerification(w, v) }); err != nil {
		return err
	}
	if !v.Valid {
		return ErrChainInvalid
	}
	return nil
}

func printVerification(w io.Writer, v *receiptmodels.Verification) error {
	if v.Valid {
		_, err := fmt.Fprintf(w, "pointer %s: chain valid (%d receipts)\n", v.PointerID, v.Length)
		return err
	}
	if v.BrokenAt != nil {
		_, err := fmt.Fprintf(w, "pointer %s: chain BROKEN at seq %d of %d: %s\n", v.PointerID, *v.BrokenAt, v.Length, v.Reason)
		return err
	}
	_, err := fmt.Fprintf(w, "pointer %s: chain invalid: %s\n", v.PointerID, v.Reason)
	return err
}
