package main

// inspect.go - decoders for wire artifacts seen in logs and packet captures

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/migadu/sora-lineproto/logger"
	"github.com/migadu/sora-lineproto/server"
	"github.com/migadu/sora-lineproto/server/saslauth"
)

func handleParseProxy(args []string) {
	fs := flag.NewFlagSet("parse-proxy", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Printf(`Parse a PROXY protocol v1 header line

Usage:
  sora-lineproto parse-proxy "<header line>"

Examples:
  sora-lineproto parse-proxy "PROXY TCP4 192.0.2.1 198.51.100.1 56324 25"
  sora-lineproto parse-proxy "PROXY UNKNOWN"
`)
	}
	if err := fs.Parse(args); err != nil {
		logger.Fatalf("Error parsing flags: %v", err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	if err := describeProxyHeader(os.Stdout, strings.Join(fs.Args(), " ")); err != nil {
		logger.Fatalf("Invalid header: %v", err)
	}
}

func describeProxyHeader(w io.Writer, line string) error {
	info, err := server.ParseProxyV1Header(line)
	if err != nil {
		return err
	}
	if info == nil {
		fmt.Fprintln(w, "UNKNOWN: no address information")
		return nil
	}
	fmt.Fprintf(w, "source:      %s\n", info.Source())
	fmt.Fprintf(w, "destination: %s\n", info.Destination())
	return nil
}

func handleDecodeOAuth(args []string) {
	fs := flag.NewFlagSet("decode-oauth", flag.ExitOnError)
	showToken := fs.Bool("show-token", false, "Print the full bearer token")
	fs.Usage = func() {
		fmt.Printf(`Decode an OAUTHBEARER/XOAUTH2 initial response

Usage:
  sora-lineproto decode-oauth [options] <base64 initial response>

Options:
  --show-token    Print the full bearer token instead of a masked prefix
`)
	}
	if err := fs.Parse(args); err != nil {
		logger.Fatalf("Error parsing flags: %v", err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	if err := describeOAuthResponse(os.Stdout, fs.Arg(0), *showToken); err != nil {
		logger.Fatalf("%v", err)
	}
}

func describeOAuthResponse(w io.Writer, ir string, showToken bool) error {
	resp, ok := saslauth.ParseOIDCInitialResponse(ir)
	if !ok {
		return fmt.Errorf("not a valid OAUTHBEARER or XOAUTH2 initial response")
	}
	token := resp.Token
	if !showToken {
		token = maskToken(token)
	}
	fmt.Fprintf(w, "user:  %s\n", resp.User)
	fmt.Fprintf(w, "token: %s\n", token)
	return nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "[REDACTED]"
	}
	return token[:4] + "...[REDACTED]"
}
