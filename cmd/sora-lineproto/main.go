package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "check-config":
		handleCheckConfig(os.Args[2:])
	case "parse-proxy":
		handleParseProxy(os.Args[2:])
	case "decode-oauth":
		handleDecodeOAuth(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`SORA line protocol tool

Usage:
  sora-lineproto <command> [options]

Commands:
  check-config    Validate a configuration file and show the resolved server settings
  parse-proxy     Parse a PROXY protocol v1 header line
  decode-oauth    Decode an OAUTHBEARER/XOAUTH2 initial response
  help            Show this help message

Examples:
  sora-lineproto check-config --config /etc/sora/lineproto.toml
  sora-lineproto check-config --config lineproto.toml --json
  sora-lineproto parse-proxy "PROXY TCP4 192.0.2.1 198.51.100.1 56324 25"
  sora-lineproto decode-oauth bixhPWFsaWNlAWF1dGg9QmVhcmVyIHRvazEyMwEB

Use 'sora-lineproto <command> --help' for more information about a command.
`)
}
