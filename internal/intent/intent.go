// Package intent turns a raw chat message into an actionable intent. Slash
// commands and the literal "confirm" are parsed locally; everything else is
// handed to an external classifier.
package intent

import (
	"fmt"
	"strings"

	xerrors "ChatWallet/internal/errors"
)

// Kind names what the user asked for.
type Kind string

const (
	KindStart          Kind = "start"
	KindHelp           Kind = "help"
	KindBalance        Kind = "balance"
	KindTokens         Kind = "tokens"
	KindExport         Kind = "export"
	KindCancel         Kind = "cancel"
	KindSwap           Kind = "swap"
	KindBridge         Kind = "bridge"
	KindSend           Kind = "send"
	KindConfirm        Kind = "confirm"
	KindUnknownCommand Kind = "unknown_command"
	// KindNone means the classifier found nothing actionable; Response holds
	// its reply.
	KindNone Kind = "none"
)

// Source tells where an intent came from.
type Source string

const (
	SourceCommand    Source = "command"
	SourceClassifier Source = "classifier"
)

const (
	CodeMissingParameters     xerrors.Code = "MISSING_PARAMETERS"
	CodeClassifierUnavailable xerrors.Code = "CLASSIFIER_UNAVAILABLE"
)

func init() {
	xerrors.Register(CodeMissingParameters, xerrors.Attributes{
		Message:  "Some details are missing from your request.",
		Severity: xerrors.SeverityInfo,
		Public:   true,
	})
	xerrors.Register(CodeClassifierUnavailable, xerrors.Attributes{
		Message:   "intent classifier unavailable",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// Params are the positional or extracted arguments of an intent. Unused
// fields stay empty.
type Params struct {
	Amount    string
	FromToken string
	ToToken   string
	FromChain string
	ToChain   string
	Token     string
	Recipient string
	Chain     string
}

// Intent is the resolved meaning of one message.
type Intent struct {
	Kind     Kind
	Params   Params
	Response string
	Command  string
	Source   Source
}

// Usage lines shown when a command is malformed.
const (
	UsageSwap   = "/swap <amount> <fromToken> <toToken> <fromChain> <toChain>"
	UsageBridge = "/bridge <amount> <token> <toChain> [fromChain]"
	UsageSend   = "/send <amount> <token> <recipient> [chain]"
)

// Validate checks that the parameters an action needs are present.
func (i Intent) Validate() error {
	var missing []string
	need := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	var usage string
	switch i.Kind {
	case KindSwap:
		usage = UsageSwap
		need("amount", i.Params.Amount)
		need("fromToken", i.Params.FromToken)
		need("toToken", i.Params.ToToken)
		need("fromChain", i.Params.FromChain)
		need("toChain", i.Params.ToChain)
	case KindBridge:
		usage = UsageBridge
		need("amount", i.Params.Amount)
		need("token", i.Params.Token)
		need("toChain", i.Params.ToChain)
	case KindSend:
		usage = UsageSend
		need("amount", i.Params.Amount)
		need("token", i.Params.Token)
		need("recipient", i.Params.Recipient)
	default:
		return nil
	}
	if len(missing) == 0 {
		return nil
	}
	return xerrors.New(CodeMissingParameters,
		fmt.Sprintf("Missing %s. Usage: %s", strings.Join(missing, ", "), usage),
		xerrors.WithMetadata("intent", string(i.Kind)),
	)
}
