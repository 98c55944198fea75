package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/click-redirector/internal/codec"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect click tokens and hop destinations.",
	}

	var slug string
	decode := &cobra.Command{
		Use:   "decode <click_id>",
		Short: "Decode the attribution fields of a click token.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				fields codec.Fields
				err    error
			)
			if slug != "" {
				fields, err = codec.ParseToken(args[0], slug)
			} else {
				fields, err = codec.DecodeFields(args[0])
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"year":     fields.Year,
				"country":  fields.Country,
				"address":  fields.Address,
				"platform": fields.Platform,
				"network":  fields.Network,
			})
		},
	}
	decode.Flags().StringVar(&slug, "slug", "", "link slug appended to the token; omit to decode a bare block")
	cmd.AddCommand(decode)

	cmd.AddCommand(&cobra.Command{
		Use:   "dest <param>",
		Short: "Decode a dest query parameter.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := codec.DecodeDestination(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), dest)
			return err
		},
	})
	return cmd
}
