package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"wa-blaster/internal/bootstrap"
	"wa-blaster/internal/console"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/usecase"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var sendFlags struct {
	numbers string
	groups  []string
	labels  []string
	message string
	delay   float64
	attach  string
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one batch to numbers, groups or labels",
	Example: `  wa-blaster send --numbers "15551230001,15551230002" --message "Hello" --delay 3
  wa-blaster send --group Family --group "Book Club" --attach flyer.pdf
  wa-blaster send --label VIP --message "Sale today"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		payload := entity.SendPayload{
			Numbers:      sendFlags.numbers,
			Labels:       sendFlags.labels,
			Message:      sendFlags.message,
			DelaySeconds: sendFlags.delay,
		}

		for _, name := range sendFlags.groups {
			payload.Recipients = append(payload.Recipients, entity.GroupRecipient("", name))
		}

		if sendFlags.attach != "" {
			attachment, err := entity.LoadAttachment(sendFlags.attach)
			if err != nil {
				return err
			}

			payload.Attachment = attachment
		}

		var typ entity.CommandType

		switch {
		case sendFlags.numbers != "":
			typ = entity.CmdSendBulk
		case len(sendFlags.groups) > 0:
			typ = entity.CmdSendGroup
		case len(sendFlags.labels) > 0:
			typ = entity.CmdSendLabel
		default:
			return errors.New("one of --numbers, --group or --label is required")
		}

		return runCommand(cmd, typ, payload)
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List groups from the chat list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCommand(cmd, entity.CmdGetGroups, nil)
	},
}

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List business labels and their chats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCommand(cmd, entity.CmdGetLabels, nil)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether WhatsApp Web is open and logged in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCommand(cmd, entity.CmdCheckStatus, nil)
	},
}

func init() {
	flags := sendCmd.Flags()
	flags.StringVar(&sendFlags.numbers, "numbers", "", "Phone numbers separated by commas, spaces or newlines")
	flags.StringArrayVar(&sendFlags.groups, "group", nil, "Group name (repeatable)")
	flags.StringArrayVar(&sendFlags.labels, "label", nil, "Business label name (repeatable)")
	flags.StringVarP(&sendFlags.message, "message", "m", "", "Message text")
	flags.Float64Var(&sendFlags.delay, "delay", 0, "Seconds to wait between recipients")
	flags.StringVar(&sendFlags.attach, "attach", "", "File to send with the message")
	sendCmd.MarkFlagsMutuallyExclusive("numbers", "group", "label")
}

// runCommand starts the core app, dispatches one command and stops.
func runCommand(cmd *cobra.Command, typ entity.CommandType, data any) error {
	command := entity.Command{ID: uuid.NewString(), Type: typ}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}

		command.Data = raw
	}

	var svc *usecase.Service

	app := fx.New(bootstrap.Core(), fx.Populate(&svc), fx.NopLogger)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(cmd.Context(), app.StartTimeout())
	defer cancel()

	if err := app.Start(startCtx); err != nil {
		return err
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	result := svc.Commands.Dispatch(cmd.Context(), command)

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		console.Render(out, result)
	}

	if !result.OK {
		return fmt.Errorf("%s failed", typ)
	}

	return nil
}
