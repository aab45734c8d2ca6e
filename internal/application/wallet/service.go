package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bloomwire/ordercore/internal/domain/ledger"
	"github.com/bloomwire/ordercore/internal/domain/payment"
	"github.com/bloomwire/ordercore/internal/domain/txn"
	"github.com/bloomwire/ordercore/internal/observability"
	"github.com/bloomwire/ordercore/internal/observability/logctx"
)

const (
	serviceName    = "wallet-service"
	spanPrefix     = "UC."
	useCaseTopUp   = "wallet.topup"
	useCaseWebhook = "wallet.payment_callback"
	gatewayPeer    = "payment-gateway"
)

type IDGenerator interface {
	NewID() string
}

// Service owns the wallet and credit ledgers' public operations and the
// payment-gateway reconciliation flow that feeds the wallet ledger.
type Service struct {
	wallet   *ledger.Ledger
	credits  *ledger.Ledger
	payments payment.Repository
	gateway  payment.Gateway
	runner   txn.Runner
	idGen    IDGenerator
	currency string

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewService(
	wallet, credits *ledger.Ledger,
	payments payment.Repository,
	gateway payment.Gateway,
	runner txn.Runner,
	idGen IDGenerator,
	currency string,
	tel observability.Observability,
) *Service {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Service{
		wallet:       wallet,
		credits:      credits,
		payments:     payments,
		gateway:      gateway,
		runner:       runner,
		idGen:        idGen,
		currency:     currency,
		log:          tel.Logger().With(observability.F("service", serviceName)),
		tracer:       tel.Tracer(),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
		extCounter:   tel.Metrics().Counter(observability.MExternalRequests),
		extHistogram: tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

type Balances struct {
	Wallet decimal.Decimal
	Credit decimal.Decimal
}

func (s *Service) Balances(ctx context.Context, userID string) (*Balances, error) {
	w, err := s.wallet.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	c, err := s.credits.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Balances{Wallet: w, Credit: c}, nil
}

func (s *Service) WalletTransactions(ctx context.Context, userID string) ([]*ledger.Transaction, error) {
	return s.wallet.Transactions(ctx, userID)
}

func (s *Service) CreditTransactions(ctx context.Context, userID string) ([]*ledger.Transaction, error) {
	return s.credits.Transactions(ctx, userID)
}

// AdminDeposit credits a user's wallet directly. Fails with
// ledger.ErrInvalidAmount for non-positive amounts.
func (s *Service) AdminDeposit(ctx context.Context, userID string, amount decimal.Decimal, description string) (*ledger.Transaction, error) {
	var tx *ledger.Transaction
	err := s.runner.Atomic(ctx, func(ctx context.Context) error {
		var err error
		tx, err = s.wallet.Deposit(ctx, userID, amount, description, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

type TopUp struct {
	PaymentOrderID string
	RedirectURL    string
}

// CreateTopUp creates a remote payment order and persists its local mirror
// in PENDING. A gateway failure aborts the request; nothing is persisted.
func (s *Service) CreateTopUp(ctx context.Context, userID string, amount decimal.Decimal) (t *TopUp, err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseTopUp))

	ctx, span := s.tracer.Start(ctx, spanPrefix+"CreateTopUp",
		attribute.String("use_case", useCaseTopUp),
		attribute.String("wallet.user_id", userID),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", useCaseTopUp),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat, observability.L("use_case", useCaseTopUp))

		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		)
	}()

	if !amount.IsPositive() {
		outcome, statusText = "error", "AMOUNT_INVALID"
		return nil, payment.ErrInvalidAmount
	}

	gwStart := time.Now()
	created, err := s.gateway.CreateOrder(ctx, amount, s.currency)
	gwOutcome := "success"
	if err != nil {
		gwOutcome = "error"
	}
	s.extCounter.Add(1,
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", "create_order"),
		observability.L("outcome", gwOutcome),
	)
	s.extHistogram.Observe(time.Since(gwStart).Seconds(),
		observability.L("peer", gatewayPeer),
		observability.L("endpoint", "create_order"),
	)
	if err != nil {
		outcome, statusText = "error", "GATEWAY_CREATE_FAILED"
		return nil, err
	}

	entity, err := payment.NewOrder(s.idGen.NewID(), userID, created.RemoteID, s.currency, created.RedirectURL, amount)
	if err != nil {
		outcome, statusText = "error", "PAYMENT_ORDER_INVALID"
		return nil, err
	}
	if err = s.payments.Insert(ctx, entity); err != nil {
		outcome, statusText = "error", "PAYMENT_ORDER_INSERT_FAILED"
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.remote_id", created.RemoteID))
	return &TopUp{PaymentOrderID: entity.ID, RedirectURL: entity.RedirectURL}, nil
}

// HandleCallback absorbs a gateway webhook. Anomalies (unknown id, already
// settled, unrecognized status, malformed payload) are logged and swallowed:
// the gateway cannot meaningfully react to an error and may blindly retry.
// The credited amount always comes from the locally stored order.
func (s *Service) HandleCallback(ctx context.Context, raw []byte) (err error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("use_case", useCaseWebhook))

	ctx, span := s.tracer.Start(ctx, spanPrefix+"PaymentCallback",
		attribute.String("use_case", useCaseWebhook),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"

	defer func() {
		lat := time.Since(start).Seconds()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		s.reqCounter.Add(1,
			observability.L("use_case", useCaseWebhook),
			observability.L("outcome", outcome),
		)
		s.durHistogram.Observe(lat, observability.L("use_case", useCaseWebhook))

		logger.Info("use_case_done",
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
		)
	}()

	cb, parseErr := payment.ParseCallback(raw)
	if parseErr != nil {
		statusText = "PAYLOAD_MALFORMED"
		logger.Warn("callback_payload_malformed", observability.F("error", parseErr.Error()))
		return nil
	}
	span.SetAttributes(
		attribute.String("payment.remote_id", cb.RemoteID),
		attribute.String("payment.remote_status", cb.Status),
	)
	logger = logger.With(observability.F("remote_id", cb.RemoteID))

	err = s.runner.Atomic(ctx, func(ctx context.Context) error {
		entity, lookupErr := s.payments.FindByRemoteID(ctx, cb.RemoteID)
		if lookupErr != nil {
			if errors.Is(lookupErr, payment.ErrNotFound) {
				statusText = "REMOTE_ID_UNKNOWN"
				logger.Warn("callback_unknown_remote_id")
				return nil
			}
			return lookupErr
		}

		if entity.Status != payment.StatusPending {
			// Idempotency guard: duplicate or out-of-order redelivery.
			statusText = "ALREADY_SETTLED"
			logger.Info("callback_ignored_already_settled",
				observability.F("payment_status", string(entity.Status)),
			)
			return nil
		}

		switch cb.Status {
		case payment.RemoteStatusCompleted:
			if err := entity.Settle(payment.StatusCompleted, raw); err != nil {
				return err
			}
			if _, err := s.wallet.Deposit(ctx, entity.UserID, entity.Amount, "wallet top-up", entity.ID); err != nil {
				return err
			}
			return s.payments.Update(ctx, entity)
		case payment.RemoteStatusRejected:
			if err := entity.Settle(payment.StatusFailed, raw); err != nil {
				return err
			}
			return s.payments.Update(ctx, entity)
		default:
			statusText = "REMOTE_STATUS_UNRECOGNIZED"
			logger.Warn("callback_unrecognized_status",
				observability.F("remote_status", cb.Status),
			)
			return nil
		}
	})
	if err != nil {
		outcome, statusText = "error", "CALLBACK_UNIT_FAILED"
		logger.Error("callback_unit_failed", observability.F("error", err.Error()))
	}
	return err
}
