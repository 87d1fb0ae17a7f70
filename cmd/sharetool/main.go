package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/ruteri/heirloom/cryptoutils"
	"github.com/ruteri/heirloom/escrow"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/sharing"
	"github.com/urfave/cli/v2"
)

var flagSecretFile = &cli.StringFlag{
	Name:  "secret-file",
	Value: "-",
	Usage: "file holding the secret, - for stdin",
}

var flagContentID = &cli.StringFlag{
	Name:  "content-id",
	Usage: "64-char hex content id; a random one is generated if empty",
}

type splitOutput struct {
	ContentID        string             `json:"content_id"`
	Shares           []interfaces.Share `json:"shares"`
	BeneficiaryToken string             `json:"beneficiary_token"`
	EscrowBlob       string             `json:"escrow_blob"`
}

func main() {
	app := &cli.App{
		Name:  "sharetool",
		Usage: "Split, encode and recover heirloom secrets offline",
		Commands: []*cli.Command{
			{
				Name:  "split",
				Usage: "split a secret into three shares and print their custodial encodings",
				Flags: []cli.Flag{flagSecretFile, flagContentID},
				Action: func(cCtx *cli.Context) error {
					secret, err := readSecret(cCtx.String(flagSecretFile.Name))
					if err != nil {
						return err
					}

					id, err := contentID(cCtx.String(flagContentID.Name))
					if err != nil {
						return err
					}

					shares, err := sharing.Split(secret)
					if err != nil {
						return err
					}
					token, err := sharing.FormatToken(shares[1], id)
					if err != nil {
						return err
					}
					blob, err := cryptoutils.ObfuscateEscrowShare(shares[2], id)
					if err != nil {
						return err
					}

					return printJSON(splitOutput{
						ContentID:        id.String(),
						Shares:           shares[:],
						BeneficiaryToken: token,
						EscrowBlob:       blob,
					})
				},
			},
			{
				Name:      "combine",
				Usage:     "reconstruct a secret from two shares",
				ArgsUsage: "<share> <share>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 2 {
						return fmt.Errorf("expected two shares, got %d", cCtx.NArg())
					}
					secret, err := sharing.Reconstruct(interfaces.Share(cCtx.Args().Get(0)), interfaces.Share(cCtx.Args().Get(1)))
					if err != nil {
						return err
					}
					_, err = os.Stdout.Write(secret)
					return err
				},
			},
			{
				Name:      "token",
				Usage:     "pack a share and content id into an offline token",
				ArgsUsage: "<share>",
				Flags:     []cli.Flag{flagContentID},
				Action: func(cCtx *cli.Context) error {
					id, err := interfaces.NewContentIDFromHex(cCtx.String(flagContentID.Name))
					if err != nil {
						return err
					}
					token, err := sharing.FormatToken(interfaces.Share(cCtx.Args().First()), id)
					if err != nil {
						return err
					}
					fmt.Println(token)
					return nil
				},
			},
			{
				Name:      "parse-token",
				Usage:     "print the share and content id of an offline token",
				ArgsUsage: "<token>",
				Action: func(cCtx *cli.Context) error {
					share, id, err := sharing.ParseToken(cCtx.Args().First())
					if err != nil {
						return err
					}
					return printJSON(map[string]string{"content_id": id.String(), "share": share.String()})
				},
			},
			{
				Name:      "deobfuscate",
				Usage:     "recover an escrow share from its obfuscated form",
				ArgsUsage: "<escrow blob>",
				Flags:     []cli.Flag{flagContentID},
				Action: func(cCtx *cli.Context) error {
					id, err := interfaces.NewContentIDFromHex(cCtx.String(flagContentID.Name))
					if err != nil {
						return err
					}
					share, err := cryptoutils.DeobfuscateEscrowShare(cCtx.Args().First(), id)
					if err != nil {
						return err
					}
					fmt.Println(share)
					return nil
				},
			},
			{
				Name:      "recover",
				Usage:     "reconstruct a secret from a beneficiary token and a released escrow share",
				ArgsUsage: "<token> <escrow share>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 2 {
						return fmt.Errorf("expected token and escrow share, got %d arguments", cCtx.NArg())
					}
					secret, err := escrow.Recover(cCtx.Args().Get(0), interfaces.Share(cCtx.Args().Get(1)))
					if err != nil {
						return err
					}
					_, err = os.Stdout.Write(secret)
					return err
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func readSecret(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		return []byte(strings.TrimRight(string(data), "\r\n")), nil
	}
	return os.ReadFile(path)
}

func contentID(raw string) (interfaces.ContentID, error) {
	if raw == "" {
		return interfaces.NewRandomContentID()
	}
	return interfaces.NewContentIDFromHex(raw)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
