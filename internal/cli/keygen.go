package cli

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"veto/internal/crypto"
)

// KeygenResult is the output of vetoctl keygen.
type KeygenResult struct {
	Algorithm  string `json:"algorithm"`
	KeyID      string `json:"key_id"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a receipt signing key",
		Long: `Generate an Ed25519 receipt signing key.

The private key is printed as a base64 seed suitable for VETO_SIGNING_PRIVATE_KEY.
Keep it secret; the public key may be distributed to auditors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(rootOpts, cmd.OutOrStdout())
		},
	}
}

func runKeygen(opts *RootOptions, w io.Writer) error {
	signer, err := crypto.GenerateEd25519Signer()
	if err != nil {
		return err
	}
	res := KeygenResult{
		Algorithm:  string(signer.Algorithm()),
		KeyID:      signer.KeyID(),
		PrivateKey: signer.Seed(),
		PublicKey:  base64.StdEncoding.EncodeToString(signer.PublicKey()),
	}
	return opts.output(w, res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "algorithm:   %s\nkey_id:      %s\nprivate_key: %s\npublic_key:  %s\n",
			res.Algorithm, res.KeyID, res.PrivateKey, res.PublicKey)
		return err
	})
}
