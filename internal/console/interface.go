package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"wa-blaster/internal/entity"
	"wa-blaster/internal/usecase"
	"wa-blaster/internal/usecase/adapters"
	"wa-blaster/pkg/logg"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var errExit = errors.New("exit")

// Interface is the interactive operator console. Every line becomes one
// inbound command, so the console exercises the same dispatcher as the
// AMQP transport.
type Interface struct {
	commands   adapters.CommandService
	shutdowner fx.Shutdowner
	logger     *zap.Logger
	in         io.Reader
	out        io.Writer

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool

	mu         sync.Mutex
	delay      float64
	attachment *entity.Attachment
}

type Params struct {
	fx.In

	Logger     *zap.Logger
	Usecase    *usecase.Service
	Shutdowner fx.Shutdowner `optional:"true"`
}

func NewInterface(params Params) *Interface {
	i := New(params.Usecase.Commands, params.Logger, os.Stdin, os.Stdout)
	i.shutdowner = params.Shutdowner

	return i
}

// New builds a console reading commands from in and printing to out.
func New(commands adapters.CommandService, logger *zap.Logger, in io.Reader, out io.Writer) *Interface {
	ctx, cancel := context.WithCancel(context.Background())

	return &Interface{
		commands: commands,
		logger:   logger.With(zap.String(logg.Layer, "Console")),
		in:       in,
		out:      out,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start reads commands until input ends, the operator exits or Stop is
// called.
func (i *Interface) Start() error {
	i.printBanner()
	i.printHelp()

	scanner := bufio.NewScanner(i.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for !i.stopping.Load() {
		fmt.Fprint(i.out, "\n> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if err := i.handleCommand(input); err != nil {
			if errors.Is(err, errExit) {
				break
			}

			i.logger.Debug("Command error", zap.Error(err))
			fmt.Fprintf(i.out, "Error: %v\n", err)
		}
	}

	if i.shutdowner != nil && !i.stopping.Load() {
		return i.shutdowner.Shutdown()
	}

	return scanner.Err()
}

// Stop cancels the running command. A batch in flight ends with the
// remaining recipients marked cancelled.
func (i *Interface) Stop() error {
	if !i.stopping.CompareAndSwap(false, true) {
		return nil
	}

	i.logger.Info("Stopping console interface...")
	i.cancel()

	return nil
}

func (i *Interface) handleCommand(input string) error {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "help", "h":
		i.printHelp()
		return nil

	case "exit", "quit", "q":
		fmt.Fprintln(i.out, "Shutting down...")
		return errExit

	case "delay":
		seconds, err := strconv.ParseFloat(rest, 64)
		if err != nil || seconds < 0 {
			return errors.New("delay must be a non-negative number of seconds")
		}

		i.mu.Lock()
		i.delay = seconds
		i.mu.Unlock()

		fmt.Fprintf(i.out, "Delay between messages: %gs\n", seconds)

		return nil

	case "attach":
		if rest == "" {
			return errors.New("usage: attach <path>")
		}

		attachment, err := entity.LoadAttachment(rest)
		if err != nil {
			return err
		}

		i.mu.Lock()
		i.attachment = attachment
		i.mu.Unlock()

		fmt.Fprintf(i.out, "Attached %s (%s, %s)\n", attachment.Name, attachment.MimeType, attachment.HumanSize())

		return nil

	case "detach":
		i.mu.Lock()
		i.attachment = nil
		i.mu.Unlock()

		fmt.Fprintln(i.out, "Attachment removed")

		return nil

	case "status":
		return i.dispatch(entity.CmdCheckStatus, nil)
	case "groups":
		return i.dispatch(entity.CmdGetGroups, nil)
	case "labels":
		return i.dispatch(entity.CmdGetLabels, nil)
	case "contacts":
		return i.dispatch(entity.CmdExportContacts, nil)

	case "history":
		limit := 0
		if rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil || n <= 0 {
				return errors.New("history limit must be a positive number")
			}
			limit = n
		}

		return i.dispatch(entity.CmdHistory, map[string]int{"limit": limit})

	case "report":
		if rest == "" {
			return errors.New("usage: report <batch id>")
		}

		return i.dispatch(entity.CmdGetReport, map[string]string{"id": rest})

	case "autoreply":
		return i.autoReply(rest)

	case "welcome":
		return i.dispatch(entity.CmdUpdateWelcome, map[string]string{"message": rest})

	case "bulk", "group", "label":
		return i.send(strings.ToLower(name), rest)
	}

	return fmt.Errorf("unknown command %q, type help", name)
}

func (i *Interface) autoReply(args string) error {
	sub, rest, _ := strings.Cut(args, " ")

	switch strings.ToLower(sub) {
	case "on", "off":
		return i.dispatch(entity.CmdToggleAutoReply, map[string]bool{"enabled": strings.EqualFold(sub, "on")})
	case "set":
		return i.dispatch(entity.CmdUpdateAutoReply, map[string]string{"message": strings.TrimSpace(rest)})
	}

	return errors.New("usage: autoreply on|off|set <template>")
}

// send handles "<kind> <targets> | <message>".
func (i *Interface) send(kind, args string) error {
	targets, message, _ := strings.Cut(args, "|")
	targets = strings.TrimSpace(targets)
	message = strings.TrimSpace(message)

	if targets == "" {
		return fmt.Errorf("usage: %s <targets> | <message>", kind)
	}

	i.mu.Lock()
	payload := entity.SendPayload{
		Message:      message,
		DelaySeconds: i.delay,
		Attachment:   i.attachment,
	}
	i.mu.Unlock()

	var typ entity.CommandType

	switch kind {
	case "bulk":
		typ = entity.CmdSendBulk
		payload.Numbers = targets
	case "group":
		typ = entity.CmdSendGroup
		for _, name := range splitList(targets) {
			payload.Recipients = append(payload.Recipients, entity.GroupRecipient("", name))
		}
	case "label":
		typ = entity.CmdSendLabel
		payload.Labels = splitList(targets)
	}

	return i.dispatch(typ, payload)
}

func (i *Interface) dispatch(typ entity.CommandType, data any) error {
	cmd := entity.Command{ID: uuid.NewString(), Type: typ}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}

		cmd.Data = raw
	}

	result := i.commands.Dispatch(i.ctx, cmd)
	Render(i.out, result)

	return nil
}

func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

func (i *Interface) printBanner() {
	fmt.Fprintln(i.out, `
+-----------------------------------------------+
|                  wa-blaster                   |
|   bulk messaging for WhatsApp Web sessions    |
+-----------------------------------------------+`)
}

func (i *Interface) printHelp() {
	fmt.Fprintln(i.out, `
Available commands:
  status                         - Show whether WhatsApp Web is open and logged in
  groups                         - List groups from the chat list
  labels                         - List business labels and their chats
  contacts                       - Export visible contacts
  bulk <numbers> | <message>     - Message numbers (comma or space separated)
  group <names> | <message>      - Message groups by name (comma separated)
  label <labels> | <message>     - Message every chat under the labels
  delay <seconds>                - Pause between recipients
  attach <path> / detach         - Send a file with the next batches
  autoreply on|off               - Toggle the auto-reply loop
  autoreply set <template>       - Auto-reply text, {message} is the incoming text
  welcome <message>              - Default group message, {name} is the group name
  history [n]                    - Show recent batches
  report <batch id>              - Show every outcome of a past batch
  help, h                        - Show this help message
  exit, quit, q                  - Exit the application`)
}
