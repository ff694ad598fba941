// Command coldchainctl is the operator tool for a running ledger: it mints
// caller tokens, replays the reference sensor sequence and verifies the event
// log hash chain.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"coldchain/internal/jwttoken"
	"coldchain/internal/platform/config"
	"coldchain/pkg/domain"
)

const usage = `usage: coldchainctl <command> [flags]

commands:
  token     mint a bearer token for an identity
  simulate  send the reference sensor sequence as the oracle
  verify    check the event log hash chain of a running server
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "token":
		err = runToken(args[1:], stdout)
	case "simulate":
		err = runSimulate(ctx, args[1:], stdout)
	case "verify":
		err = runVerify(ctx, args[1:], stdout)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errChainBroken):
		return 1
	default:
		fmt.Fprintf(stderr, "coldchainctl %s: %v\n", args[0], err)
		return 1
	}
}

func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("COLDCHAIN_CONFIG"), "path to a YAML config file")
	identity := fs.String("identity", "", "caller identity (0x + 40 hex digits)")
	role := fs.String("role", "", "informational role claim")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: auth.token_ttl)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	caller, err := domain.ParseIdentity(*identity)
	if err != nil {
		return err
	}
	lifetime := *ttl
	if lifetime == 0 {
		lifetime = cfg.Auth.TokenTTL
	}

	token, err := mintToken(cfg.Auth, caller, *role, lifetime)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}

func mintToken(auth config.AuthConfig, caller domain.Identity, role string, ttl time.Duration) (string, error) {
	return jwttoken.NewJWTService(auth.JWTSigningKey, auth.Issuer, auth.Audience).GenerateToken(caller, role, ttl)
}
