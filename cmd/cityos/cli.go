package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "sign":
		return runSign(args[2:])
	case "check":
		return runCheck(args[2:])
	case "resolve-host":
		return runResolveHost(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "cityos"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s sign --tenant-id <id> [--store-id <id>] [--portal <type>] [--secret <secret>] [--at <rfc3339>] [--curl]\n", name)
	fmt.Fprintf(os.Stderr, "  %s check --kind <kind> --actions <a,b> [--resource-id <id>] [--attr k=v]... [--user-id <id>] [--roles <r1,r2>] [--tenant-id <id>] [--store-id <id>] [--portal <type>] [--pdp-url <url>] [--api-key <key>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s resolve-host <host> [--roles <r1,r2>]\n", name)
}
