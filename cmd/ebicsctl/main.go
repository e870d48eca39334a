// Command ebicsctl is the operator control-plane client for ebicsd,
// grounded on cmd/lncli/main.go's urfave/cli app + macaroon-credentials
// dial pattern.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	macaroon "gopkg.in/macaroon.v2"

	"github.com/sandboxbank/ebicsd/internal/adminrpc"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[ebicsctl] %v\n", err)
	os.Exit(1)
}

func getClient(ctx *cli.Context) (adminrpc.AdminClient, func()) {
	conn, err := grpc.Dial(ctx.GlobalString("rpcserver"), grpc.WithInsecure())
	if err != nil {
		fatal(err)
	}
	return adminrpc.NewAdminClient(conn), func() { conn.Close() }
}

// authContext attaches the operator's macaroon, read hex-encoded from
// --macaroonpath, to the outgoing call, after adding a time-before
// caveat that expires --macaroontimeout seconds from now.
func authContext(ctx *cli.Context) context.Context {
	path := ctx.GlobalString("macaroonpath")
	if path == "" {
		return context.Background()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}
	macBytes, err := hex.DecodeString(string(raw))
	if err != nil {
		fatal(fmt.Errorf("malformed macaroon at %s: %w", path, err))
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		fatal(fmt.Errorf("malformed macaroon at %s: %w", path, err))
	}
	validUntil := time.Now().Add(time.Duration(ctx.GlobalInt64("macaroontimeout")) * time.Second)
	if err := mac.AddFirstPartyCaveat([]byte("time-before " + validUntil.UTC().Format(time.RFC3339))); err != nil {
		fatal(err)
	}
	constrained, err := mac.MarshalBinary()
	if err != nil {
		fatal(err)
	}
	return metadata.AppendToOutgoingContext(context.Background(), "macaroon", hex.EncodeToString(constrained))
}

var healthCommand = cli.Command{
	Name:  "health",
	Usage: "report whether the daemon considers itself healthy",
	Action: func(c *cli.Context) error {
		client, cleanUp := getClient(c)
		defer cleanUp()

		resp, err := client.Health(authContext(c), &adminrpc.HealthRequest{})
		if err != nil {
			return err
		}
		fmt.Printf("healthy=%t demobank=%s\n", resp.Healthy, resp.DemobankName)
		return nil
	},
}

var triggerDrainCommand = cli.Command{
	Name:      "triggerdrain",
	Usage:     "force an immediate cash-out drain pass for one account",
	ArgsUsage: "account-label",
	Action: func(c *cli.Context) error {
		label := c.Args().First()
		if label == "" {
			return fmt.Errorf("triggerdrain: account-label is required")
		}

		client, cleanUp := getClient(c)
		defer cleanUp()

		resp, err := client.TriggerDrain(authContext(c), &adminrpc.TriggerDrainRequest{AccountLabel: label})
		if err != nil {
			return err
		}
		fmt.Printf("submitted %d pending credit(s)\n", resp.SubmittedCount)
		return nil
	},
}

var describeSubscriberCommand = cli.Command{
	Name:      "describesubscriber",
	Usage:     "inspect a subscriber's key-lifecycle state",
	ArgsUsage: "host-id partner-id user-id",
	Action: func(c *cli.Context) error {
		if c.NArg() != 3 {
			return fmt.Errorf("describesubscriber: expected host-id partner-id user-id")
		}

		client, cleanUp := getClient(c)
		defer cleanUp()

		resp, err := client.DescribeSubscriber(authContext(c), &adminrpc.DescribeSubscriberRequest{
			HostID:    c.Args().Get(0),
			PartnerID: c.Args().Get(1),
			UserID:    c.Args().Get(2),
		})
		if err != nil {
			return err
		}
		fmt.Printf("state=%s bank_account_id=%d has_ini=%t has_hia=%t\n",
			resp.State, resp.BankAccountID, resp.HasIniLetter, resp.HasHiaLetter)
		return nil
	},
}

func main() {
	app := cli.NewApp()
	app.Name = "ebicsctl"
	app.Version = "0.1"
	app.Usage = "control plane for the EBICS banking sandbox daemon (ebicsd)"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: "localhost:10009",
			Usage: "host:port of the ebicsd admin server",
		},
		cli.StringFlag{
			Name:  "macaroonpath",
			Value: "",
			Usage: "path to the hex-encoded admin macaroon",
		},
		cli.Int64Flag{
			Name:  "macaroontimeout",
			Value: 60,
			Usage: "anti-replay macaroon validity time in seconds",
		},
	}
	app.Commands = []cli.Command{
		healthCommand,
		triggerDrainCommand,
		describeSubscriberCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
