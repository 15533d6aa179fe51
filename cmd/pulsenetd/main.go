package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bilalaabkari/pulsenet/internal/config"
	"github.com/bilalaabkari/pulsenet/internal/console"
	"github.com/bilalaabkari/pulsenet/internal/handler"
	"github.com/bilalaabkari/pulsenet/internal/httpassembler"
	"github.com/bilalaabkari/pulsenet/internal/logging"
	"github.com/bilalaabkari/pulsenet/internal/netcore"
)

const (
	toolName = "pulsenetd"
	version  = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   toolName,
	Short: "A general-purpose TCP server core with a pluggable HTTP/1.x assembler",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("address", "ANY", "listen address (ANY binds every interface)")
	flags.Int("port", 8080, "listen port")
	flags.Int("workers", 4, "assembler worker pool size")
	flags.String("config", "", "path to a config file (yaml, json, toml, or properties)")
	flags.Bool("assembleChunked", true, "buffer chunked HTTP bodies into one message instead of emitting per chunk")
	flags.Bool("json", false, "print --version output as JSON")
	flags.Bool("version", false, "print version information and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if ok, _ := cmd.Flags().GetBool("version"); ok {
		asJSON, _ := cmd.Flags().GetBool("json")
		printVersion(asJSON)
		return nil
	}

	configPath, _ := cmd.Flags().GetString("config")
	watcher, err := config.NewWatcherWithFlags(configPath, cmd.Flags(), func(err error) {
		logging.L().Write("ERROR", "config reload failed: "+err.Error())
	})
	if err != nil {
		return err
	}
	cfg := watcher.Current()

	logging.Init(logging.Severity(cfg.LogLevel))
	log := logging.L()

	ha := httpassembler.New(httpassembler.Options{
		Limits: httpassembler.Limits{
			MaxRequestLineLength: cfg.MaxRequestLineLength,
			MaxTotalHeaderBytes:  cfg.MaxTotalHeaderBytes,
			MaxBodySize:          cfg.MaxBodySize,
		},
		AssembleChunked: cfg.AssembleChunked,
	})

	addr := cfg.Address
	if addr == config.AnyAddress {
		addr = ""
	}
	srv := netcore.NewServer(netcore.Options{
		ListenAddr: fmt.Sprintf("%s:%d", addr, cfg.Port),
		Assembler:  ha,
		Workers:    cfg.Workers,
		Logger:     log,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	log.Write("INFO", fmt.Sprintf("listening on %s:%d", srv.GetIP(), srv.GetPort()))

	go handler.Run(ctx, srv, log)

	c := console.New(os.Stdin, os.Stdout)
	c.Register("clients", "list connected clients", func([]string) string {
		var b bytes.Buffer
		srv.ShowClients(&b)
		return b.String()
	})
	c.Register("send", "send <client-id> <text>", func(args []string) string {
		if len(args) < 2 {
			return "usage: send <client-id> <text>"
		}
		var id uint64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return "invalid client id"
		}
		if err := srv.Send(id, []byte(strings.Join(args[1:], " "))); err != nil {
			return err.Error()
		}
		return "sent"
	})
	go c.Run()

	<-ctx.Done()
	log.Write("INFO", "shutting down")
	return srv.Stop()
}

func printVersion(asJSON bool) {
	if asJSON {
		out, _ := json.Marshal(map[string]string{"name": toolName, "version": version})
		fmt.Println(string(out))
		return
	}
	fmt.Printf("%s v%s\n", toolName, version)
}
