package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/daemon"
	"github.com/matheus3301/msgr/internal/messenger"
	"github.com/matheus3301/msgr/internal/profile"
	"github.com/matheus3301/msgr/internal/sdk"
	"github.com/matheus3301/msgr/internal/sdk/loopback"
	"github.com/matheus3301/msgr/internal/signin"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap/zapcore"
)

// PasswordEnv holds the account password so it never appears in argv.
const PasswordEnv = "MSGR_PASSWORD"

var errNoService = errors.New("no service SDK is linked into this build; run with --loopback")

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, out io.Writer) error {
	var (
		accountFlag  string
		presenceFlag string
		useLoopback  bool
		verbose      bool
	)
	flagSet := pflag.NewFlagSet("msgr", pflag.ContinueOnError)
	flagSet.StringVar(&accountFlag, "account", "", "account to sign in (overrides config default_account)")
	flagSet.StringVar(&presenceFlag, "presence", "", "presence after sign-in (online, busy, away, brb, phone, lunch, invisible)")
	flagSet.BoolVar(&useLoopback, "loopback", false, "talk to an in-process loopback service that echoes messages")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	account, err := profile.Resolve(accountFlag)
	if err != nil {
		return err
	}
	var presence sdk.Presence
	if presenceFlag != "" {
		if presence, err = sdk.ParsePresence(presenceFlag); err != nil {
			return err
		}
	}
	if !useLoopback {
		return errNoService
	}
	svc := loopback.NewService()
	svc.Echo(true)

	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	var (
		loop *messenger.Loop
		b    *bus.Bus
	)
	app := fx.New(
		daemon.Module(daemon.Params{Account: account, Dialer: svc, StderrLevel: level}),
		fx.Populate(&loop, &b),
		fx.NopLogger,
	)
	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	events, unsub := b.Subscribe("", 256)
	defer unsub()
	go newRenderer(out).run(events)

	loop.Send(messenger.SignIn{Credentials: signin.Credentials{
		Identifier: account,
		Password:   os.Getenv(PasswordEnv),
		Presence:   presence,
	}})
	return repl(in, out, loop)
}

// repl feeds stdin lines to the loop until /quit or end of input.
func repl(in io.Reader, out io.Writer, loop *messenger.Loop) error {
	var current string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd, err := parseLine(scanner.Text(), current)
		if err != nil {
			fmt.Fprintf(out, "%v\n", err)
			continue
		}
		if cmd.quit {
			return nil
		}
		current = cmd.current
		for _, intent := range cmd.intents {
			if !loop.Send(intent) {
				return nil
			}
		}
	}
	return scanner.Err()
}
