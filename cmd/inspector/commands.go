package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/agentvault/sessiongate/internal/classify"
	"github.com/agentvault/sessiongate/internal/config"
	"github.com/agentvault/sessiongate/internal/smartaccount"
	"github.com/agentvault/sessiongate/internal/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

func newSelectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selectors",
		Short: "List the vault functions a session key may call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, fn := range vault.SessionFunctions {
				sel, _ := vault.Selector(fn)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", sel, fn)
			}
			return nil
		},
	}
}

func newGrantCmd() *cobra.Command {
	var (
		vaultAddr string
		key       string
		account   string
		allowance string
		ttl       time.Duration
		chainID   int64
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Print the session request the gateway would create for a key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for name, v := range map[string]string{"vault": vaultAddr, "key": key, "account": account} {
				if !common.IsHexAddress(v) {
					return fmt.Errorf("--%s must be a 0x address", name)
				}
			}
			allow, ok := new(big.Int).SetString(allowance, 10)
			if !ok || allow.Sign() <= 0 {
				return errors.New("--allowance must be a positive integer (wei)")
			}

			req := smartaccount.SessionRequest{
				Account:   common.HexToAddress(account),
				ChainID:   (*hexutil.Big)(big.NewInt(chainID)),
				ExpirySec: time.Now().Add(ttl).Unix(),
				Key: smartaccount.SessionKey{
					PublicKey: common.HexToAddress(key),
					Type:      "secp256k1",
				},
				Permissions: smartaccount.SessionPermissions(common.HexToAddress(vaultAddr), vault.Selectors(), allow),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(req)
		},
	}
	cmd.Flags().StringVar(&vaultAddr, "vault", "", "vault contract address")
	cmd.Flags().StringVar(&key, "key", "", "session key address")
	cmd.Flags().StringVar(&account, "account", "", "smart account address")
	cmd.Flags().StringVar(&allowance, "allowance", "5000000000000000", "native-token allowance in wei")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "session lifetime")
	cmd.Flags().Int64Var(&chainID, "chain-id", config.SepoliaChainID, "chain id")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "classify <error text>",
		Short: "Show how a raw infra or revert error is reported to the user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := classify.Classify(errors.New(strings.Join(args, " ")), classify.Context{
				SmartAccount: common.HexToAddress(account),
			})
			fmt.Fprintf(cmd.OutOrStdout(), "cause:   %s\nmessage: %s\n", res.Cause, res.Message)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "smart account address quoted in messages")
	return cmd
}
