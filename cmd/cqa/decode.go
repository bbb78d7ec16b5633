package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigredeye/cqa/api"
	"github.com/bigredeye/cqa/internal/hostname"
)

func makeDecodeCommand() *cobra.Command {
	var base string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "decode <hostname>",
		Short: "Print the project and version a preview hostname points at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := hostname.Decode(base, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(api.DecodeResponse{
					Owner:       target.Owner,
					Project:     target.Project,
					ProjectName: target.ProjectName(),
					Version:     target.Version,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "project: %s\nversion: %s\n", target.ProjectName(), target.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", "cqa", "Base domain of preview hostnames")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON object")

	return cmd
}
