package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"cityos/internal/infra/signedctx"
)

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var tenantID string
	var storeID string
	var portal string
	var secret string
	var at string
	var curl bool

	fs.StringVar(&tenantID, "tenant-id", "", "tenant id")
	fs.StringVar(&storeID, "store-id", "", "store id")
	fs.StringVar(&portal, "portal", "", "portal type (default public)")
	fs.StringVar(&secret, "secret", os.Getenv("CITYOS_CONTEXT_SECRET"), "shared context secret (default $CITYOS_CONTEXT_SECRET)")
	fs.StringVar(&at, "at", "", "signing time (RFC3339, default now)")
	fs.BoolVar(&curl, "curl", false, "print curl -H arguments")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if tenantID == "" {
		fmt.Fprintln(os.Stderr, "sign requires --tenant-id")
		return 1
	}

	signedAt := time.Now()
	if at != "" {
		parsed, err := time.Parse(time.RFC3339, at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse at: %v\n", err)
			return 1
		}
		signedAt = parsed
	}

	signer, err := signedctx.NewSigner([]byte(secret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "signer: %v\n", err)
		return 1
	}

	headers := http.Header{}
	signedctx.Apply(signer.Sign(tenantID, storeID, portal, signedAt), headers)
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if curl {
			fmt.Printf("-H '%s: %s' ", name, headers[name][0])
			continue
		}
		fmt.Printf("%s: %s\n", name, headers[name][0])
	}
	if curl {
		fmt.Println()
	}
	return 0
}
