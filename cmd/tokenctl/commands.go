package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/danmuck/tokencore/internal/apdu"
	"github.com/danmuck/tokencore/internal/handlers"
	"github.com/spf13/cobra"
)

type responseView struct {
	Status string `json:"status" yaml:"status"`
	Name   string `json:"name" yaml:"name"`
	Data   string `json:"data" yaml:"data"`
}

func viewOf(resp apdu.Response) responseView {
	return responseView{
		Status: resp.Status.Hex(),
		Name:   resp.Status.String(),
		Data:   strings.ToUpper(hex.EncodeToString(resp.Data)),
	}
}

type versionView struct {
	Version string `json:"version" yaml:"version"`
}

type appNameView struct {
	Name string `json:"name" yaml:"name"`
}

func parseHex(raw string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(strings.TrimSpace(raw))
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", raw, err)
	}
	return b, nil
}

// sendCmd transmits raw bytes unvalidated and always prints the status.
func (c *cli) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <hex>",
		Short: "Send a raw command frame, e.g. \"E0 01 00 00 00\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := parseHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			resp, err := c.exchange(cmd.Context(), raw)
			if err != nil && resp.Status == 0 {
				return err
			}
			c.print(cmd, viewOf(resp))
			return nil
		},
	}
}

func (c *cli) namedCmd(use, short, handler string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := c.named(cmd.Context(), handler, 0, 0, nil)
			if err != nil {
				return err
			}
			switch handler {
			case handlers.NameVersion:
				if len(resp.Data) != 3 {
					return fmt.Errorf("version: expected 3 bytes, got %d", len(resp.Data))
				}
				c.print(cmd, versionView{Version: fmt.Sprintf("%d.%d.%d", resp.Data[0], resp.Data[1], resp.Data[2])})
			case handlers.NameAppName:
				c.print(cmd, appNameView{Name: string(resp.Data)})
			default:
				c.print(cmd, viewOf(resp))
			}
			return nil
		},
	}
}

func (c *cli) echoCmd() *cobra.Command {
	var asHex bool
	cmd := &cobra.Command{
		Use:   "echo <data>",
		Short: "Round-trip data through the device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(args[0])
			if asHex {
				var err error
				if data, err = parseHex(args[0]); err != nil {
					return err
				}
			}
			resp, err := c.named(cmd.Context(), handlers.NameEcho, 0, 0, data)
			if err != nil {
				return err
			}
			c.print(cmd, viewOf(resp))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asHex, "hex", false, "treat data as hex")
	return cmd
}

func (c *cli) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the device info document and its instruction table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := c.named(cmd.Context(), handlers.NameInfo, 0, 0, nil)
			if err != nil {
				return err
			}
			info, err := handlers.DecodeDeviceInfo(resp.Data)
			if err != nil {
				return err
			}
			c.print(cmd, info)
			if _, ok := c.formatter.(tableFormatter); ok {
				c.print(cmd, info.Routes)
			}
			return nil
		},
	}
}
