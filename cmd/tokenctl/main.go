package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/tokencore/internal/apdu"
	"github.com/danmuck/tokencore/internal/client"
	"github.com/danmuck/tokencore/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tokenctl: %v\n", err)
		os.Exit(1)
	}
}

// cli holds flag values and the state resolved in PersistentPreRunE.
type cli struct {
	cfgFile string
	addr    string
	output  string
	timeout time.Duration
	class   int

	cfg       hostConfig
	formatter formatter
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "tokenctl",
		Short:         "Send commands to a tokencore device",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.resolve(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "tokenctl config file (TOML)")
	flags.StringVar(&c.addr, "addr", "", "device address (default \"127.0.0.1:9999\")")
	flags.StringVarP(&c.output, "output", "o", "", "output format: table, json, yaml")
	flags.DurationVar(&c.timeout, "timeout", 0, "per-exchange timeout")
	flags.IntVar(&c.class, "class", -1, "instruction class byte for named commands")

	root.AddCommand(
		c.sendCmd(),
		c.namedCmd("ping", "Check the device answers", "ping"),
		c.namedCmd("version", "Show the application version", "version"),
		c.namedCmd("app-name", "Show the application name", "app_name"),
		c.echoCmd(),
		c.infoCmd(),
		c.namedCmd("quit", "Ask the device application to exit", "quit"),
	)
	return root
}

func (c *cli) resolve(cmd *cobra.Command) error {
	c.cfg = defaultHostConfig()
	if strings.TrimSpace(c.cfgFile) != "" {
		loaded, err := loadHostConfig(c.cfgFile)
		if err != nil {
			return err
		}
		c.cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		c.cfg.Addr = c.addr
	}
	if flags.Changed("output") {
		c.cfg.Output = c.output
	}
	if flags.Changed("timeout") {
		c.cfg.Timeout = c.timeout
	}
	if flags.Changed("class") {
		if c.class < 0 || c.class > 0xFF {
			return fmt.Errorf("class %d out of range", c.class)
		}
		c.cfg.Class = byte(c.class)
	}
	c.formatter = newFormatter(c.cfg.Output)
	return nil
}

// exchange dials, sends one frame and closes. Status errors are returned
// alongside the response.
func (c *cli) exchange(ctx context.Context, raw []byte) (apdu.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, err := client.Dial(ctx, c.cfg.Addr, client.Options{Timeout: c.cfg.Timeout})
	if err != nil {
		return apdu.Response{}, err
	}
	defer conn.Close()
	return conn.ExchangeRaw(ctx, raw)
}

func (c *cli) named(ctx context.Context, name string, p1, p2 byte, data []byte) (apdu.Response, error) {
	ins, ok := c.cfg.Instructions[name]
	if !ok {
		return apdu.Response{}, fmt.Errorf("no instruction configured for %q", name)
	}
	raw, err := apdu.Encode(apdu.Command{Class: c.cfg.Class, Instruction: ins, P1: p1, P2: p2, Data: data})
	if err != nil {
		return apdu.Response{}, err
	}
	return c.exchange(ctx, raw)
}

func (c *cli) print(cmd *cobra.Command, data any) {
	fmt.Fprint(cmd.OutOrStdout(), c.formatter.Format(data))
}
