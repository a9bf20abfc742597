package guild

import (
	"context"
	"errors"
	"math"

	"github.com/kasuganosora/guildserver/economy"
	"github.com/kasuganosora/guildserver/model"
	"github.com/kasuganosora/guildserver/plugin/hook"
	"go.uber.org/zap"
)

// Bank change reasons recorded on BankChanged events.
const (
	ReasonDeposit  = "deposit"
	ReasonWithdraw = "withdraw"
	ReasonInterest = "interest"
)

// Deposit moves amount from actor's wallet into their guild bank. The
// wallet is refunded if the bank rejects the credit.
func (s *Service) Deposit(ctx context.Context, actor, amount int64) (Result, error) {
	if amount <= 0 {
		return fail(KindValidation, ErrMsgInvalidAmount), nil
	}
	if s.wallet == nil {
		return fail(KindServiceUnavailable, ErrMsgEconomyUnavailable), nil
	}
	g, _, res, err := s.memberOf(ctx, actor)
	if err != nil || !res.OK() {
		return res, err
	}
	kind := s.cfg.WalletKind
	has, err := s.wallet.HasSufficientFunds(ctx, actor, kind, amount)
	if err != nil {
		return Result{}, err
	}
	if !has {
		return fail(KindInsufficientFunds, ErrMsgInsufficientBalance), nil
	}
	if err := s.wallet.SubtractBalance(ctx, actor, kind, amount); err != nil {
		if errors.Is(err, economy.ErrInsufficientFunds) {
			return fail(KindInsufficientFunds, ErrMsgInsufficientBalance), nil
		}
		return Result{}, err
	}

	balance, res, err := s.ledger.AddToBank(ctx, g.ID, amount, s.MaxBankCapacity(g))
	if err != nil || !res.OK() {
		s.progression.refund(ctx, actor, amount, ReasonDeposit)
		return res, err
	}
	s.emit(ctx, g, hook.Event{
		Kind: hook.BankChanged, ActorIdentity: actor, Identity: actor,
		Amount: amount, Balance: balance, Reason: ReasonDeposit,
	})
	return success(MsgDeposited).With("amount", amount).With("balance", balance), nil
}

// Withdraw moves amount from the guild bank into actor's wallet. If the
// wallet credit fails the bank debit is reversed.
func (s *Service) Withdraw(ctx context.Context, actor, amount int64) (Result, error) {
	if amount <= 0 {
		return fail(KindValidation, ErrMsgInvalidAmount), nil
	}
	g, _, res, err := s.authorize(ctx, actor, PermWithdraw, ErrMsgNoPermWithdraw)
	if err != nil || !res.OK() {
		return res, err
	}
	if s.wallet == nil {
		return fail(KindServiceUnavailable, ErrMsgEconomyUnavailable), nil
	}
	balance, res, err := s.ledger.SubtractFromBank(ctx, g.ID, amount)
	if err != nil || !res.OK() {
		return res, err
	}
	if err := s.wallet.AddBalance(ctx, actor, s.cfg.WalletKind, amount); err != nil {
		if _, undo, uerr := s.ledger.AddToBank(ctx, g.ID, amount, math.MaxInt64); uerr != nil || !undo.OK() {
			s.logger.Error("withdraw reversal failed",
				zap.Int64("guild_id", g.ID), zap.Int64("amount", amount), zap.Error(uerr))
		}
		return Result{}, err
	}
	s.emit(ctx, g, hook.Event{
		Kind: hook.BankChanged, ActorIdentity: actor, Identity: actor,
		Amount: -amount, Balance: balance, Reason: ReasonWithdraw,
	})
	return success(MsgWithdrawn).With("amount", amount).With("balance", balance), nil
}

// AddToBank credits a guild on behalf of another module, bounded by the
// guild's capacity.
func (s *Service) AddToBank(ctx context.Context, guildID, amount int64, reason string) (Result, error) {
	g, err := s.cache.Get(ctx, guildID)
	if err != nil {
		return Result{}, err
	}
	if g == nil {
		return fail(KindNotFound, ErrMsgGuildNotFound), nil
	}
	balance, res, err := s.ledger.AddToBank(ctx, guildID, amount, s.MaxBankCapacity(g))
	if err != nil || !res.OK() {
		return res, err
	}
	s.emit(ctx, g, hook.Event{Kind: hook.BankChanged, Amount: amount, Balance: balance, Reason: reason})
	return res, nil
}

// RemoveFromBank debits a guild on behalf of another module.
func (s *Service) RemoveFromBank(ctx context.Context, guildID, amount int64, reason string) (Result, error) {
	g, err := s.cache.Get(ctx, guildID)
	if err != nil {
		return Result{}, err
	}
	if g == nil {
		return fail(KindNotFound, ErrMsgGuildNotFound), nil
	}
	balance, res, err := s.ledger.SubtractFromBank(ctx, guildID, amount)
	if err != nil || !res.OK() {
		return res, err
	}
	s.emit(ctx, g, hook.Event{Kind: hook.BankChanged, Amount: -amount, Balance: balance, Reason: reason})
	return res, nil
}

// ApplyInterest runs one interest sweep over every guild.
func (s *Service) ApplyInterest(ctx context.Context) (int, error) {
	credits, err := s.progression.ApplyInterest(ctx)
	for _, c := range credits {
		s.emit(ctx, &model.Guild{ID: c.GuildID}, hook.Event{
			Kind: hook.BankChanged, Amount: c.Interest, Balance: c.Balance, Reason: ReasonInterest,
		})
	}
	if len(credits) > 0 {
		s.logger.Info("bank interest applied", zap.Int("guilds", len(credits)))
	}
	return len(credits), err
}
