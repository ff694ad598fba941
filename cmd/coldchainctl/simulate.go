package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"coldchain/internal/platform/config"
	"coldchain/internal/shipment/models"
)

type simulatedReading struct {
	temperature int64
	location    string
}

// referenceSequence breaches the [2, 8] range twice: once hot, once cold.
var referenceSequence = []simulatedReading{
	{5, "Warehouse A"},
	{6, "On Truck #123"},
	{7, "On Truck #123"},
	{9, "Highway Stop (Hot)"},
	{8, "On Truck #123"},
	{1, "Mountain Pass (Cold)"},
	{4, "Receiving Dock"},
}

func runSimulate(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("COLDCHAIN_CONFIG"), "path to a YAML config file")
	addr := fs.String("addr", "http://localhost:8080", "ledger base URL")
	shipment := fs.String("shipment", "SHIP001", "shipment to report on")
	interval := fs.Duration("interval", 5*time.Second, "delay between readings")
	token := fs.String("token", "", "oracle bearer token (default: minted from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bearer := *token
	if bearer == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		bearer, err = mintToken(cfg.Auth, cfg.Oracle(), "oracle", cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
	}

	return simulate(ctx, newAPIClient(*addr, bearer), *shipment, *interval, stdout)
}

// simulate sends every reading in order. A rejected reading is reported and
// the sequence continues, like a field sensor would.
func simulate(ctx context.Context, client *apiClient, shipment string, interval time.Duration, stdout io.Writer) error {
	path := "/shipments/" + url.PathEscape(shipment) + "/readings"
	for i, r := range referenceSequence {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}

		ts := time.Now().Unix()
		req := models.IngestReadingRequest{Timestamp: &ts, Temperature: &r.temperature, Location: r.location}
		var result models.IngestResult
		if err := client.do(ctx, http.MethodPost, path, nil, req, &result); err != nil {
			fmt.Fprintf(stdout, "%s: %d C at %q rejected: %v\n", shipment, r.temperature, r.location, err)
			continue
		}

		fault := ""
		if result.FaultDetected {
			fault = " FAULT DETECTED"
		}
		fmt.Fprintf(stdout, "%s: %d C at %q -> index %d, %s%s\n",
			shipment, r.temperature, r.location, result.Index, result.Status, fault)
	}
	return nil
}
