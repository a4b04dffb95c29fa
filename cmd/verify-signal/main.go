package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"signal-tracker/internal/format"
	"signal-tracker/internal/oracle"
	signalPkg "signal-tracker/internal/signal"
)

func main() {
	formatName := flag.String("format", format.Standard, "message format to parse with")
	lookup := flag.Bool("lookup", false, "backfill missing fields from the market data oracle")
	flag.Parse()

	// Read input from stdin, fall back to args
	text := ""
	if stat, err := os.Stdin.Stat(); err == nil && stat.Mode()&os.ModeCharDevice == 0 {
		data, _ := io.ReadAll(os.Stdin)
		text = strings.TrimSpace(string(data))
	}
	if text == "" {
		if flag.NArg() == 0 {
			color.Red("❌ No input text provided")
			os.Exit(1)
		}
		text = strings.Join(flag.Args(), " ")
	}

	registry := format.NewRegistry()
	descriptor, ok := registry.Get(*formatName)
	if !ok {
		color.Red("❌ Unknown format %q (known: %s)", *formatName, strings.Join(registry.Names(), ", "))
		os.Exit(1)
	}

	fmt.Println("----------------------------------------")
	fmt.Println("🔍 ANALYZING MESSAGE")
	fmt.Println("----------------------------------------")
	fmt.Printf("Input:  %s\n", text)
	fmt.Printf("Format: %s\n\n", descriptor.Name)

	kind := signalPkg.Classify(text)
	fmt.Printf("Kind:   %s\n", kind)

	switch kind {
	case signalPkg.KindAlert:
		verifyAlert(text)
	case signalPkg.KindSignal:
		verifySignal(text, descriptor, *lookup)
	default:
		color.Yellow("⚠️  No signal or alert markers found")
	}
}

func verifySignal(text string, d *format.Descriptor, lookup bool) {
	var quotes signalPkg.Oracle
	if lookup {
		quotes = oracle.NewClient(oracle.DefaultBaseURL, 10*time.Second)
	}
	parser := signalPkg.NewParser(quotes, zerolog.Nop(), 10*time.Second)

	sig, err := parser.Parse(context.Background(), text, d, signalPkg.Meta{ReceivedAt: time.Now()})
	if err != nil {
		color.Red("❌ Parse Error: %v", err)
		os.Exit(1)
	}

	fmt.Println("✅ SIGNAL FOUND")
	fmt.Printf("Token:      %s\n", sig.TokenName)
	fmt.Printf("Chain:      %s\n", sig.Chain)
	if sig.Address != "" {
		fmt.Printf("CA:         %s\n", sig.Address)
	} else {
		fmt.Printf("CA:         (Not found in message)\n")
	}
	fields := []struct {
		name  string
		field format.Field
		value float64
	}{
		{"Price", format.FieldPrice, sig.EntryPrice},
		{"Market Cap", format.FieldMarketCap, sig.EntryMC},
		{"Liquidity", format.FieldLiquidity, sig.Liquidity},
		{"Volume 24h", format.FieldVolume24h, sig.Volume24h},
		{"Bundles", format.FieldBundlesPct, sig.BundlesPct},
		{"Snipers", format.FieldSnipersPct, sig.SnipersPct},
		{"Dev", format.FieldDevPct, sig.DevPct},
		{"Confidence", format.FieldConfidence, sig.Confidence},
	}
	for _, f := range fields {
		if f.value == 0 {
			continue
		}
		fmt.Printf("%-11s %s\n", f.name+":", signalPkg.FormatValue(f.field, f.value))
	}
	if sig.DexURL != "" {
		fmt.Printf("DEX:        %s\n", sig.DexURL)
	}

	fmt.Println("----------------------------------------")
	if signalPkg.ValidAddress(sig.Address) {
		color.Green("🎯 MATCH: signal would be tracked")
	} else {
		color.Yellow("⚠️  Stored but marked invalid_ca on the first sweep")
	}
}

func verifyAlert(text string) {
	ev, ok := signalPkg.ParseAlert(text, time.Now())
	if !ok {
		color.Red("❌ Alert markers found but no multiplier")
		os.Exit(1)
	}
	fmt.Println("✅ ALERT FOUND")
	fmt.Printf("Multiplier: %gx\n", ev.Multiplier)
	if ev.TokenName != "" {
		fmt.Printf("Token:      %s\n", ev.TokenName)
	}
	if ev.Elapsed != "" {
		fmt.Printf("Elapsed:    %s\n", ev.Elapsed)
	}
	if ev.Address != "" {
		fmt.Printf("CA:         %s\n", ev.Address)
	}
	extra := map[string]float64{
		"Entry MC":   ev.EntryMC,
		"Current MC": ev.CurrentMC,
		"Gain":       ev.GainMultiplier,
		"Peak":       ev.PeakMultiplier,
	}
	names := make([]string, 0, len(extra))
	for k, v := range extra {
		if v > 0 {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Printf("%-11s %g\n", k+":", extra[k])
	}
	fmt.Println("----------------------------------------")
	color.Blue("🚀 MATCH: alert would be correlated by reply or address")
}
