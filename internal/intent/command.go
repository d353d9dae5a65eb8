package intent

import "strings"

// ConfirmKeyword is the literal that executes a staged operation.
const ConfirmKeyword = "confirm"

// ParseCommand recognises the fixed command grammar. ok is false for free
// text that should go to the classifier.
func ParseCommand(text string) (Intent, bool) {
	trimmed := strings.TrimSpace(text)
	if strings.EqualFold(trimmed, ConfirmKeyword) {
		return Intent{Kind: KindConfirm, Command: ConfirmKeyword, Source: SourceCommand}, true
	}
	if !strings.HasPrefix(trimmed, "/") {
		return Intent{}, false
	}

	fields := strings.Fields(trimmed)
	command := strings.ToLower(fields[0])
	// Group chats address commands as /start@SomeBot.
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	args := fields[1:]
	in := Intent{Command: command, Source: SourceCommand}

	switch command {
	case "/start":
		in.Kind = KindStart
	case "/help":
		in.Kind = KindHelp
	case "/balance":
		in.Kind = KindBalance
	case "/tokens", "/balances":
		in.Kind = KindTokens
	case "/export":
		in.Kind = KindExport
	case "/cancel":
		in.Kind = KindCancel
	case "/confirm":
		in.Kind = KindConfirm
	case "/swap":
		in.Kind = KindSwap
		in.Params = Params{
			Amount:    arg(args, 0),
			FromToken: arg(args, 1),
			ToToken:   arg(args, 2),
			FromChain: arg(args, 3),
			ToChain:   arg(args, 4),
		}
	case "/bridge":
		in.Kind = KindBridge
		in.Params = Params{
			Amount:    arg(args, 0),
			Token:     arg(args, 1),
			ToChain:   arg(args, 2),
			FromChain: arg(args, 3),
		}
	case "/send":
		in.Kind = KindSend
		in.Params = Params{
			Amount:    arg(args, 0),
			Token:     arg(args, 1),
			Recipient: arg(args, 2),
			Chain:     arg(args, 3),
		}
	default:
		in.Kind = KindUnknownCommand
	}
	return in, true
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
