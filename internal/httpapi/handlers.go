package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vcoin-labs/vcoin/pkg/vcoin"
	"go.uber.org/zap"
)

type httpHandler struct {
	logger   *zap.Logger
	cfg      Config
	services Services
}

type activityRequest struct {
	Action string `json:"action" binding:"required"`
	PostID string `json:"post_id"`
}

type transferRequest struct {
	ToUserID    string `json:"to_user_id" binding:"required"`
	AmountMicro int64  `json:"amount_micro" binding:"required"`
}

type stakeRequest struct {
	AmountMicro  int64 `json:"amount_micro" binding:"required"`
	DurationDays int   `json:"duration_days" binding:"required"`
}

func (handler *httpHandler) handleActivity(ctx *gin.Context) {
	userID, ok := handler.requireUser(ctx)
	if !ok {
		return
	}
	var request activityRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected action in JSON body"))
		return
	}
	action, err := vcoin.ParseActionType(request.Action)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_action", err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	outcome, err := handler.services.Rewards.RecordActivity(requestCtx, userID, action, request.PostID)
	if err != nil {
		handler.respondError(ctx, "record activity", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"admitted":     outcome.Admitted,
		"reward_micro": outcome.RewardMicro.Int64(),
	})
}

func (handler *httpHandler) handleTransfer(ctx *gin.Context) {
	userID, ok := handler.requireUser(ctx)
	if !ok {
		return
	}
	var request transferRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected recipient and amount in JSON body"))
		return
	}
	toUserID, err := vcoin.NewUserID(request.ToUserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_recipient", err.Error()))
		return
	}
	amount, err := vcoin.NewPositiveAmount(request.AmountMicro)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_amount", err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	metadata, _ := vcoin.NewMetadataJSON("")
	result, err := handler.services.Ledger.Transfer(requestCtx, userID, toUserID, amount, metadata)
	if err != nil {
		handler.respondError(ctx, "transfer", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"debited_micro":  result.DebitEntry.AmountMicro.Int64(),
		"credited_micro": result.CreditEntry.AmountMicro.Int64(),
		"fee_micro":      result.FeeMicro.Int64(),
		"fee_shares": gin.H{
			"burn_micro":     result.FeeShares.BurnMicro.Int64(),
			"treasury_micro": result.FeeShares.TreasuryMicro.Int64(),
			"rewards_micro":  result.FeeShares.RewardsMicro.Int64(),
		},
	})
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	userID, ok := handler.requireUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.services.Ledger.Balance(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "balance", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":       userID.String(),
		"balance_micro": balance.Int64(),
	})
}

func (handler *httpHandler) handleHistory(ctx *gin.Context) {
	userID, ok := handler.requireUser(ctx)
	if !ok {
		return
	}
	pageSize, _ := strconv.Atoi(ctx.Query("page_size"))
	cursor, err := parseHistoryCursor(ctx.Query("cursor"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_cursor", err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, nextCursor, hasMore, err := handler.services.Ledger.History(requestCtx, userID, cursor, pageSize)
	if err != nil {
		handler.respondError(ctx, "history", err)
		return
	}
	payload := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, gin.H{
			"entry_id":     entry.EntryID,
			"type":         entry.Type.String(),
			"amount_micro": entry.AmountMicro.Int64(),
			"counterparty": entry.CounterpartyUserID,
			"post_id":      entry.PostID,
			"stake_id":     entry.StakeID,
			"created_at":   entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"entries":     payload,
		"has_more":    hasMore,
		"next_cursor": formatHistoryCursor(nextCursor),
	})
}

func (handler *httpHandler) handleStake(ctx *gin.Context) {
	userID, ok := handler.requireUser(ctx)
	if !ok {
		return
	}
	var request stakeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected amount and duration in JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	stake, err := handler.services.Staking.Stake(requestCtx, userID, vcoin.AmountMicro(request.AmountMicro), request.DurationDays)
	if err != nil {
		handler.respondError(ctx, "stake", err)
		return
	}
	ctx.JSON(http.StatusCreated, stakePayload(stake, 0))
}

func (handler *httpHandler) handleUnstake(ctx *gin.Context) {
	userID, ok := handler.requireUser(ctx)
	if !ok {
		return
	}
	stakeID := ctx.Param("id")
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	payout, err := handler.services.Staking.Unstake(requestCtx, stakeID, userID)
	if err != nil {
		handler.respondError(ctx, "unstake", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"stake_id":     stakeID,
		"payout_micro": payout.Int64(),
	})
}

func (handler *httpHandler) handleStakes(ctx *gin.Context) {
	userID, ok := handler.requireUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	views, err := handler.services.Staking.Stakes(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "stakes", err)
		return
	}
	payload := make([]gin.H, 0, len(views))
	for _, view := range views {
		payload = append(payload, stakePayload(view.Stake, view.EarnedRewardsMicro))
	}
	ctx.JSON(http.StatusOK, gin.H{"stakes": payload})
}

func (handler *httpHandler) handleTier(ctx *gin.Context) {
	userID, ok := handler.requireUser(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	tier, err := handler.services.Tiers.TierFor(requestCtx, handler.services.Store, userID)
	if err != nil {
		handler.respondError(ctx, "tier", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"tier":              tier.Name,
		"min_staked_micro":  tier.MinStakedMicro.Int64(),
		"reward_multiplier": tier.RewardMultiplier,
	})
}

func (handler *httpHandler) handleSupply(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	burned, err := handler.services.Ledger.BurnedTotal(requestCtx)
	if err != nil {
		handler.respondError(ctx, "supply", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"total_supply":      handler.services.Economy.TotalSupply,
		"burned_micro":      burned.Int64(),
		"daily_pool_micro":  handler.services.Economy.DailyRewardPoolMicro().Int64(),
		"vcn_price_usd":     handler.services.Economy.VCNPriceUSD,
		"monthly_emission":  handler.services.Economy.MonthlyEmission,
		"max_daily_usd":     handler.services.Economy.MaxDailyRewardUSD,
		"transaction_fee":   handler.services.Economy.TransactionFeeRate,
		"fee_burn_rate":     handler.services.Economy.BurnRate,
		"fee_treasury_rate": handler.services.Economy.TreasuryRate,
		"fee_rewards_rate":  handler.services.Economy.RewardsRate,
	})
}

func (handler *httpHandler) requireUser(ctx *gin.Context) (vcoin.UserID, bool) {
	raw := actingUserID(ctx)
	userID, err := vcoin.NewUserID(raw)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return vcoin.UserID{}, false
	}
	return userID, true
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

// respondError maps domain sentinel errors onto stable HTTP codes. Anything
// unmapped is a storage-level failure: logged and surfaced as retryable.
func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, vcoin.ErrInsufficientBalance):
		ctx.JSON(http.StatusConflict, errorResponse("insufficient_balance", "balance does not cover the debit"))
	case errors.Is(err, vcoin.ErrNotYetMatured):
		ctx.JSON(http.StatusConflict, errorResponse("not_yet_matured", "stake has not reached its end date"))
	case errors.Is(err, vcoin.ErrAlreadyUnstaked):
		ctx.JSON(http.StatusConflict, errorResponse("already_unstaked", "stake was already withdrawn"))
	case errors.Is(err, vcoin.ErrStakeNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("stake_not_found", "no such stake"))
	case errors.Is(err, vcoin.ErrForbidden):
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", "stake belongs to another user"))
	case errors.Is(err, vcoin.ErrBelowMinimumStake):
		ctx.JSON(http.StatusBadRequest, errorResponse("below_minimum_stake", "amount is below the minimum stake"))
	case errors.Is(err, vcoin.ErrInvalidDuration):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_duration", "duration is not a configured staking term"))
	case errors.Is(err, vcoin.ErrInvalidAmount), errors.Is(err, vcoin.ErrInvalidUserID):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	default:
		handler.logger.Error(operation+" failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "temporary failure, retry"))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func stakePayload(stake vcoin.Stake, earned vcoin.AmountMicro) gin.H {
	return gin.H{
		"stake_id":      stake.StakeID,
		"amount_micro":  stake.AmountMicro.Int64(),
		"duration_days": stake.DurationDays,
		"apy_percent":   stake.APYPercent,
		"start_date":    stake.StartDate.UTC().Format(time.RFC3339),
		"end_date":      stake.EndDate.UTC().Format(time.RFC3339),
		"status":        stake.Status.String(),
		"earned_micro":  earned.Int64(),
	}
}
