package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/heirloom/api/escalationhandler"
	"github.com/ruteri/heirloom/cmd/flags"
	"github.com/ruteri/heirloom/escalation"
	"github.com/ruteri/heirloom/escrow"
	"github.com/urfave/cli/v2"
)

var (
	flagOwner       = &cli.StringFlag{Name: "owner", Required: true, Usage: "owner reference"}
	flagBeneficiary = &cli.StringFlag{Name: "beneficiary", Usage: "beneficiary reference"}
	flagContentID   = &cli.StringFlag{Name: "content-id", Required: true, Usage: "64-char hex content id of the protected secret"}
	flagEmail       = &cli.StringFlag{Name: "email", Usage: "owner email for verification messages"}
	flagPhone       = &cli.StringFlag{Name: "phone", Usage: "owner phone (E.164) for verification messages"}
	flagWallet      = &cli.StringFlag{Name: "wallet", Usage: "owner wallet address allowed to sign responses"}
	flagIntervalDay = &cli.IntFlag{Name: "interval-days", Value: 30, Usage: "heartbeat check-in interval in days"}
	flagWalletKey   = &cli.StringFlag{Name: "wallet-key", EnvVars: []string{"HEIRLOOM_WALLET_KEY"}, Usage: "hex secp256k1 private key used to sign the response"}
)

func client(cCtx *cli.Context) *escalationhandler.Client {
	return escalationhandler.NewClient(cCtx.String(flags.ServerURLFlag.Name), nil)
}

func main() {
	app := &cli.App{
		Name:  "heirloom-client",
		Usage: "Work with a heirloom server",
		Flags: []cli.Flag{flags.ServerURLFlag},
		Commands: []*cli.Command{
			{
				Name:  "protect",
				Usage: "split a secret on the server and register its owner; prints the beneficiary token",
				Flags: []cli.Flag{&cli.StringFlag{Name: "secret", Required: true}, flagOwner, flagEmail, flagPhone, flagWallet},
				Action: func(cCtx *cli.Context) error {
					resp, err := client(cCtx).Protect(cCtx.Context, cCtx.String("secret"), escalation.OwnerRequest{
						OwnerRef:    cCtx.String(flagOwner.Name),
						Contacts:    contacts(cCtx),
						OwnerWallet: cCtx.String(flagWallet.Name),
					})
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "claim",
				Usage: "file a claim on behalf of a beneficiary",
				Flags: []cli.Flag{flagBeneficiary, flagContentID},
				Action: func(cCtx *cli.Context) error {
					resp, err := client(cCtx).FileClaim(cCtx.Context, escalation.ClaimRequest{
						ContentID:      cCtx.String(flagContentID.Name),
						BeneficiaryRef: cCtx.String(flagBeneficiary.Name),
					})
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "heartbeat",
				Usage: "arm a heartbeat for the owner of a protected secret",
				Flags: []cli.Flag{flagBeneficiary, flagContentID, flagIntervalDay},
				Action: func(cCtx *cli.Context) error {
					resp, err := client(cCtx).ArmHeartbeat(cCtx.Context, escalation.HeartbeatRequest{
						ContentID:           cCtx.String(flagContentID.Name),
						BeneficiaryRef:      cCtx.String(flagBeneficiary.Name),
						CheckInIntervalDays: cCtx.Int(flagIntervalDay.Name),
					})
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:      "status",
				ArgsUsage: "<escalation id>",
				Action: func(cCtx *cli.Context) error {
					resp, err := client(cCtx).Get(cCtx.Context, cCtx.Args().First())
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:      "events",
				ArgsUsage: "<escalation id>",
				Action: func(cCtx *cli.Context) error {
					events, err := client(cCtx).Events(cCtx.Context, cCtx.Args().First())
					if err != nil {
						return err
					}
					return printJSON(events)
				},
			},
			{
				Name:      "checkin",
				ArgsUsage: "<escalation id>",
				Action: func(cCtx *cli.Context) error {
					resp, err := client(cCtx).CheckIn(cCtx.Context, cCtx.Args().First())
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:      "respond",
				Usage:     "sign the owner response with the registered wallet key",
				ArgsUsage: "<escalation id>",
				Flags:     []cli.Flag{flagWalletKey},
				Action: func(cCtx *cli.Context) error {
					id := cCtx.Args().First()
					sig, err := signResponse(cCtx.String(flagWalletKey.Name), id)
					if err != nil {
						return err
					}
					resp, err := client(cCtx).Respond(cCtx.Context, id, sig)
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:      "reject",
				ArgsUsage: "<escalation id>",
				Flags:     []cli.Flag{&cli.StringFlag{Name: "reason"}},
				Action: func(cCtx *cli.Context) error {
					resp, err := client(cCtx).Reject(cCtx.Context, cCtx.Args().First(), cCtx.String("reason"))
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:      "recover",
				Usage:     "fetch the released escrow share and reconstruct the secret",
				ArgsUsage: "<escalation id> <beneficiary token>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 2 {
						return fmt.Errorf("expected escalation id and token")
					}
					return recoverSecret(cCtx.Context, client(cCtx), cCtx.Args().Get(0), cCtx.Args().Get(1))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func contacts(cCtx *cli.Context) escalation.Contacts {
	return escalation.Contacts{
		Email: cCtx.String(flagEmail.Name),
		Phone: cCtx.String(flagPhone.Name),
	}
}

func signResponse(keyHex, id string) ([]byte, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	return crypto.Sign(accounts.TextHash([]byte(escalation.ResponseMessage(id))), key)
}

func recoverSecret(ctx context.Context, c *escalationhandler.Client, id, token string) error {
	share, err := c.Release(ctx, id)
	if err != nil {
		return err
	}
	secret, err := escrow.Recover(token, share)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(secret)
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
