package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/framecho/internal/client"
	"github.com/danmuck/framecho/internal/logging"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "client-echo: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	cfg     client.Config
	timeout time.Duration
	prompt  bool
}

func rootCmd() *cobra.Command {
	opts := options{cfg: client.DefaultConfig()}
	cmd := &cobra.Command{
		Use:           "client-echo [message...]",
		Short:         "Send framed messages to an echo server",
		Long:          "Sends each argument as one frame, or each stdin line when no arguments are given, and prints every response.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var in io.Reader = cmd.InOrStdin()
			if len(args) > 0 {
				in = strings.NewReader(strings.Join(args, "\n") + "\n")
			} else if f, ok := in.(*os.File); ok {
				opts.prompt = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
			}
			return run(ctx, opts, in, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.cfg.Address, "addr", "a", "127.0.0.1:1234", "Server address")
	flags.IntVar(&opts.cfg.MaxConnectAttempts, "attempts", 1, "Connect attempts (0 retries until interrupted)")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per-message round trip timeout")
	flags.BoolVar(&opts.cfg.Session.TLS.Enabled, "tls", false, "Dial with TLS")
	flags.StringVar(&opts.cfg.Session.TLS.CAFile, "ca", "", "CA bundle used to verify the server")
	flags.StringVar(&opts.cfg.Session.TLS.CertFile, "cert", "", "Client certificate for mutual TLS")
	flags.StringVar(&opts.cfg.Session.TLS.KeyFile, "key", "", "Client key for mutual TLS")
	flags.StringVar(&opts.cfg.Session.TLS.ServerName, "server-name", "", "Override the TLS server name")
	flags.BoolVar(&opts.cfg.Session.TLS.InsecureSkipVerify, "insecure", false, "Skip TLS verification")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		opts.cfg.Session.TLS.Mutual = opts.cfg.Session.TLS.CertFile != "" || opts.cfg.Session.TLS.KeyFile != ""
	}
	return cmd
}

// run sends each line of in as one message and writes each response to out.
func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	c, err := client.Dial(ctx, opts.cfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", opts.cfg.Address, err)
	}
	defer c.Close()

	scanner := bufio.NewScanner(in)
	for {
		if opts.prompt {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSuffix(scanner.Text(), "\r")
		resp, err := send(ctx, c, line, opts.timeout)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, resp)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func send(ctx context.Context, c *client.Client, msg string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.Send(ctx, msg)
}
