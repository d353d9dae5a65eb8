package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "ChatWallet/internal/errors"
	"ChatWallet/pkg/logger"
)

// DefaultClassifierTimeout bounds one classifier round trip.
const DefaultClassifierTimeout = 5 * time.Second

// Classification is the classifier's answer for one message.
type Classification struct {
	Intent     string
	Parameters map[string]string
	Response   string
}

// Classifier labels free text.
type Classifier interface {
	Classify(ctx context.Context, text, sessionID string) (Classification, error)
}

// Option customises the resolver.
type Option func(*Resolver)

// WithTimeout overrides the classifier deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger overrides the resolver logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// Resolver applies the command grammar first, then the classifier.
type Resolver struct {
	classifier Classifier
	timeout    time.Duration
	log        *slog.Logger
}

// NewResolver builds a resolver. A nil classifier answers free text with
// KindNone.
func NewResolver(classifier Classifier, opts ...Option) *Resolver {
	r := &Resolver{
		classifier: classifier,
		timeout:    DefaultClassifierTimeout,
		log:        logger.Named("intent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve maps text onto an intent. Classifier failures surface as
// CLASSIFIER_UNAVAILABLE; they are never read as "no intent".
func (r *Resolver) Resolve(ctx context.Context, sessionID, text string) (Intent, error) {
	if in, ok := ParseCommand(text); ok {
		return in, nil
	}
	if r.classifier == nil {
		return Intent{Kind: KindNone, Source: SourceClassifier}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	started := time.Now()
	result, err := r.classifier.Classify(callCtx, strings.TrimSpace(text), sessionID)
	if err != nil {
		r.log.Warn("classifier call failed",
			slog.String("session_id", sessionID),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("error", err.Error()),
		)
		return Intent{}, xerrors.Wrap(CodeClassifierUnavailable, err, "",
			xerrors.WithMetadata("session_id", sessionID))
	}

	in := FromClassification(result)
	r.log.Debug("message classified",
		slog.String("session_id", sessionID),
		slog.String("label", result.Intent),
		slog.String("kind", string(in.Kind)),
	)
	return in, nil
}

// FromClassification normalises a classifier answer.
func FromClassification(c Classification) Intent {
	p := func(names ...string) string {
		for _, name := range names {
			if v := strings.TrimSpace(c.Parameters[name]); v != "" {
				return v
			}
		}
		return ""
	}
	in := Intent{Source: SourceClassifier, Response: strings.TrimSpace(c.Response)}
	switch strings.ToLower(strings.TrimSpace(c.Intent)) {
	case "balance":
		in.Kind = KindBalance
	case "tokens", "token_balances", "balances", "portfolio":
		in.Kind = KindTokens
	case "swap", "exchange", "trade":
		in.Kind = KindSwap
		in.Params = Params{
			Amount:    p("amount"),
			FromToken: p("fromToken", "from_token"),
			ToToken:   p("toToken", "to_token"),
			FromChain: p("fromChain", "from_chain"),
			ToChain:   p("toChain", "to_chain"),
		}
	case "bridge":
		in.Kind = KindBridge
		in.Params = Params{
			Amount:    p("amount"),
			Token:     p("token", "fromToken", "from_token"),
			FromChain: p("fromChain", "from_chain"),
			ToChain:   p("toChain", "to_chain", "chain"),
		}
	case "send", "transfer":
		in.Kind = KindSend
		in.Params = Params{
			Amount:    p("amount"),
			Token:     p("token", "fromToken", "from_token"),
			Recipient: p("recipient", "to", "address"),
			Chain:     p("chain", "fromChain", "from_chain"),
		}
	case "help":
		in.Kind = KindHelp
	case "start":
		in.Kind = KindStart
	default:
		in.Kind = KindNone
	}
	return in
}

// String is used in logs only.
func (i Intent) String() string {
	return fmt.Sprintf("%s(%s)", i.Kind, i.Source)
}
