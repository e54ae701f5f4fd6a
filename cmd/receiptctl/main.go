package main

import (
	receipt "github.com/takimoto3/iap-receipt"
	"github.com/takimoto3/iap-receipt/ber"
	"github.com/takimoto3/iap-receipt/source"

	"github.com/urfave/cli/v2"

	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var errArgs = errors.New("Wrong number of arguments")

// receiptData reads the receipt named by the first argument, or stdin
// when it is "-".
func receiptData(cc *cli.Context) ([]byte, error) {
	if cc.Args().Len() != 1 {
		cli.ShowSubcommandHelp(cc)
		return nil, errArgs
	}
	path := cc.Args().Get(0)
	if path == "-" {
		buf, err := io.ReadAll(cc.App.Reader)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return source.Bytes(buf).ReceiptData(cc.Context)
	}
	f := &source.FileFetcher{Path: path, Logger: logger(cc)}
	return f.ReceiptData(cc.Context)
}

func logger(cc *cli.Context) *slog.Logger {
	level := slog.LevelWarn
	if cc.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cc.App.ErrWriter, &slog.HandlerOptions{Level: level}))
}

func parser(cc *cli.Context) *receipt.Parser {
	return receipt.NewParser(
		receipt.WithLogger(logger(cc)),
		receipt.WithMaxDepth(cc.Int("max-depth")),
	)
}

func handleInspect(cc *cli.Context) error {
	data, err := receiptData(cc)
	if err != nil {
		return err
	}
	r, err := parser(cc).Parse(data)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cc.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Dump(cc.Bool("unknown")))
}

func handleTree(cc *cli.Context) error {
	data, err := receiptData(cc)
	if err != nil {
		return err
	}
	p := parser(cc)
	var c *ber.Container
	if cc.Bool("content") {
		c, err = p.ReceiptContainer(data)
	} else {
		c, err = p.Decode(data)
	}
	if err != nil {
		return err
	}
	writeTree(cc.App.Writer, c, 0)
	return nil
}

func writeTree(w io.Writer, c *ber.Container, depth int) {
	fmt.Fprintf(w, "%s%s", strings.Repeat("  ", depth), c)
	if c.Class == ber.Universal && !c.IsConstructed() {
		switch c.Identifier() {
		case ber.ObjectIdentifier:
			if oid, err := c.ObjectIdentifier(); err == nil {
				fmt.Fprintf(w, " %s (%s)", oid, c.ContentType())
			}
		case ber.Integer:
			if v, err := c.Int64(); err == nil {
				fmt.Fprintf(w, " %d", v)
			}
		case ber.UTF8String, ber.IA5String, ber.PrintableString:
			if s, err := c.Text(); err == nil {
				fmt.Fprintf(w, " %q", s)
			}
		case ber.OctetString:
			// Attribute values and the receipt itself are encoded inside
			// octet strings.
			if inner, err := ber.Decode(c.Payload); err == nil && inner.TotalBytesUsed() == len(c.Payload) {
				fmt.Fprintln(w)
				writeTree(w, inner, depth+1)
				return
			}
		}
	}
	fmt.Fprintln(w)
	for _, child := range c.Children {
		writeTree(w, child, depth+1)
	}
}

func handleIntroOffers(cc *cli.Context) error {
	data, err := receiptData(cc)
	if err != nil {
		return err
	}
	r, err := parser(cc).Parse(data)
	if err != nil {
		return err
	}
	for _, id := range r.PurchasedIntroOfferOrFreeTrialProductIdentifiers() {
		fmt.Fprintln(cc.App.Writer, id)
	}
	return nil
}

func handleHasTransactions(cc *cli.Context) error {
	data, err := receiptData(cc)
	if err != nil {
		return err
	}
	fmt.Fprintln(cc.App.Writer, parser(cc).ReceiptHasTransactions(data))
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "receiptctl",
		Usage: "inspect App Store receipts",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log at debug level",
			},
			&cli.IntFlag{
				Name:  "max-depth",
				Usage: "maximum container nesting",
				Value: ber.DefaultMaxDepth,
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "prints the decoded receipt as JSON",
				Action:    handleInspect,
				ArgsUsage: "<path|->",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "unknown",
						Usage: "only print unrecognized attributes",
					},
				},
			},
			{
				Name:      "tree",
				Usage:     "prints the BER container tree",
				Action:    handleTree,
				ArgsUsage: "<path|->",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "content",
						Usage: "start at the receipt attribute set instead of the envelope",
					},
				},
			},
			{
				Name:      "intro-offers",
				Usage:     "lists products bought in a trial or introductory offer period",
				Action:    handleIntroOffers,
				ArgsUsage: "<path|->",
			},
			{
				Name:      "has-transactions",
				Usage:     "reports whether the receipt holds in-app purchases",
				Action:    handleHasTransactions,
				ArgsUsage: "<path|->",
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		if err != errArgs {
			fmt.Printf("error: %v\n", err.Error())
		}
		os.Exit(1)
	}
}
