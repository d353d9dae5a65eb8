package agent

import (
	"fmt"
	"strings"
	"time"

	"ChatWallet/internal/intent"
	"ChatWallet/internal/quote"
	"ChatWallet/internal/registry"
)

// 固定回复文案。
const (
	GenericFailureText = "❌ An error occurred. Please try again."
	UnknownCommandText = "Unknown command. Use /start to see available commands!"
	FallbackText       = "I'm not sure what you mean. Use /help to see what I can do."
	ExportRefusedText  = "🔒 Private keys never leave custody and cannot be exported through chat."
	NothingToCancel    = "There is nothing to cancel."
	ConfirmPrompt      = "Reply 'confirm' to execute."
)

func helpText() string {
	return "Available commands:\n" +
		"- /balance - Check your balance\n" +
		"- /tokens - Show token balances across chains\n" +
		"- " + intent.UsageSwap + "\n" +
		"- " + intent.UsageBridge + "\n" +
		"- " + intent.UsageSend + "\n" +
		"- /cancel - Drop the staged operation\n" +
		"- confirm - Execute the staged operation"
}

func newWalletText(address string) string {
	return "✅ New wallet created successfully!\n\n" +
		"Your address: " + address + "\n\n" +
		"⚠️ Important: This is a custodial wallet. Do not send significant funds.\n\n" +
		helpText()
}

func existingWalletText(address string) string {
	return "You already have a wallet: " + address + "\n\n" + helpText()
}

func kindLabel(kind quote.Kind) string {
	switch kind {
	case quote.KindSwap:
		return "swap"
	case quote.KindBridge:
		return "bridge"
	case quote.KindSend:
		return "transfer"
	default:
		return string(kind)
	}
}

func quoteText(reg *registry.Registry, q quote.Quote, replaced *quote.Kind) string {
	var b strings.Builder
	if replaced != nil {
		fmt.Fprintf(&b, "ℹ️ Your previous pending %s was replaced.\n\n", kindLabel(*replaced))
	}
	from := reg.ChainName(q.FromChainID)
	to := reg.ChainName(q.ToChainID)
	switch q.Kind {
	case quote.KindSwap:
		b.WriteString("🔄 Swap quote\n")
		fmt.Fprintf(&b, "From: %s %s on %s\n", q.AmountInDisplay, q.FromSymbol, from)
		fmt.Fprintf(&b, "To: ~%s %s on %s\n", q.AmountOutDisplay, q.ToSymbol, to)
	case quote.KindBridge:
		b.WriteString("🌉 Bridge quote\n")
		fmt.Fprintf(&b, "Send: %s %s from %s\n", q.AmountInDisplay, q.FromSymbol, from)
		fmt.Fprintf(&b, "Receive: ~%s %s on %s\n", q.AmountOutDisplay, q.ToSymbol, to)
	case quote.KindSend:
		b.WriteString("📤 Transfer\n")
		fmt.Fprintf(&b, "Amount: %s %s on %s\n", q.AmountInDisplay, q.FromSymbol, from)
		fmt.Fprintf(&b, "To: %s\n", q.Recipient.Hex())
	}
	if !q.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "Expires: %s\n", q.ExpiresAt.UTC().Format(time.TimeOnly+" MST"))
	}
	b.WriteString("\n")
	b.WriteString(ConfirmPrompt)
	return b.String()
}

func receiptText(r quote.Receipt) string {
	q := r.Quote
	switch r.Kind {
	case quote.KindSwap:
		return fmt.Sprintf("✅ Swap submitted: %s %s → ~%s %s\nOrder: %s",
			q.AmountInDisplay, q.FromSymbol, q.AmountOutDisplay, q.ToSymbol, r.Reference)
	case quote.KindBridge:
		return fmt.Sprintf("✅ Bridge submitted: %s %s\nMessage: %s", q.AmountInDisplay, q.FromSymbol, r.Reference)
	default:
		return fmt.Sprintf("✅ Sent %s %s to %s\nTx: %s", q.AmountInDisplay, q.FromSymbol, q.Recipient.Hex(), r.Reference)
	}
}

func cancelledText(kind quote.Kind) string {
	return fmt.Sprintf("🗑️ Your pending %s was cancelled.", kindLabel(kind))
}

func nativeBalanceText(balance, symbol string) string {
	return fmt.Sprintf("💰 Your balance: %s %s", balance, symbol)
}
