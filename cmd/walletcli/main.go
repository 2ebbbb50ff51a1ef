package main

// walletcli – client front-end for the wallet example application. It builds
// signed transactions locally and talks to a node's HTTP bridge with the same
// binary encodings the node uses internally.

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"aurachain/core"
	"aurachain/pkg/utils"
	"aurachain/pkg/wallet"
)

var (
	bridgeURL string
	secretHex string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "walletcli",
		Short: "wallet client for an aurachain node",
	}
	root.PersistentFlags().StringVar(&bridgeURL, "bridge", utils.EnvOrDefault("AURACHAIN_BRIDGE", "http://127.0.0.1:8089"), "node bridge base URL")
	root.PersistentFlags().StringVar(&secretHex, "secret", os.Getenv("AURACHAIN_SECRET"), "hex-encoded ed25519 secret")

	root.AddCommand(keygenCmd(), transferCmd(), mintCmd(), balanceCmd(), lengthCmd(), blockCmd())
	if err := root.Execute(); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "generate a fresh keypair",
		Run: func(_ *cobra.Command, _ []string) {
			kp := core.GenerateKeypair()
			fmt.Printf("public: %s\n", core.PublicKeyHex(kp))
			fmt.Printf("secret: %x\n", kp.Seed())
		},
	}
}

func transferCmd() *cobra.Command {
	var to string
	var amount, nonce uint64
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "submit a transfer to the pool",
		RunE: func(_ *cobra.Command, _ []string) error {
			kp, err := core.KeypairFromSecretHex(secretHex)
			if err != nil {
				return err
			}
			txn, err := wallet.NewSignedTransfer(kp, to, amount, nonce)
			if err != nil {
				return err
			}
			return submit(txn)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient public key hex")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to move")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "sender nonce")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func mintCmd() *cobra.Command {
	var to string
	var amount, nonce uint64
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "submit a mint to the pool",
		RunE: func(_ *cobra.Command, _ []string) error {
			kp, err := core.KeypairFromSecretHex(secretHex)
			if err != nil {
				return err
			}
			txn, err := wallet.NewSignedMint(kp, to, amount, nonce)
			if err != nil {
				return err
			}
			return submit(txn)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient public key hex")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to credit")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "sender nonce")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func balanceCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "fetch the wallet state of an address",
		RunE: func(_ *cobra.Command, _ []string) error {
			var entry core.State
			if err := call(http.MethodGet, "/client/fetch_state", address, &entry); err != nil {
				return err
			}
			var ws wallet.CryptoState
			if err := core.Deserialize(entry.GetData(), &ws); err != nil {
				return utils.Wrap(err, "decode wallet state")
			}
			fmt.Printf("balance: %d\nnonce: %d\n", ws.Balance, ws.Nonce)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "public key hex to query")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

func lengthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "length",
		Short: "fetch the blockchain length",
		RunE: func(_ *cobra.Command, _ []string) error {
			var length uint64
			if err := call(http.MethodGet, "/client/fetch_blockchain_length", nil, &length); err != nil {
				return err
			}
			fmt.Printf("blockchain length: %d\n", length)
			return nil
		},
	}
}

func blockCmd() *cobra.Command {
	var height uint64
	cmd := &cobra.Command{
		Use:   "block",
		Short: "fetch a block's human-readable rendering",
		RunE: func(_ *cobra.Command, _ []string) error {
			var rendered string
			if err := call(http.MethodGet, "/client/fetch_block", height, &rendered); err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&height, "height", 0, "block height to fetch")
	return cmd
}

func submit(txn *core.SignedTransaction) error {
	payload, err := core.Serialize(txn)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(bridgeURL+"/client/submit_transaction", "application/cbor", bytes.NewReader(payload))
	if err != nil {
		return utils.Wrap(err, "submit transaction")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned %s: %s", resp.Status, body)
	}
	fmt.Printf("%s\ntxn hash: %s\n", body, txn.Hash())
	return nil
}

func call(method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		data, err := core.Serialize(body)
		if err != nil {
			return err
		}
		payload = data
	}
	req, err := http.NewRequest(method, bridgeURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge returned %s: %s", resp.Status, raw)
	}
	return core.Deserialize(raw, out)
}
