package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/zhiyin-next/internal/cache"
	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/logger"
	"github.com/zhiyin-next/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ledgerExecutor 帐本写操作：先取大使锁，再在单个事务内读-校验-写
type ledgerExecutor struct {
	partnerRepo repository.PartnerRepository
	locker      LedgerLocker
}

func newLedgerExecutor(partnerRepo repository.PartnerRepository, locker LedgerLocker) ledgerExecutor {
	if locker == nil {
		locker = NewLocalLedgerLocker(0)
	}
	return ledgerExecutor{partnerRepo: partnerRepo, locker: locker}
}

func (e ledgerExecutor) run(ctx context.Context, partnerCode string, fn func(tx *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	code := repository.NormalizePartnerCode(partnerCode)
	if code != "" {
		unlock, err := e.locker.Lock(ctx, code)
		if err != nil {
			return err
		}
		defer unlock()
	}
	if err := ctx.Err(); err != nil {
		return wrapSystemError(err)
	}
	if err := e.partnerRepo.Transaction(fn); err != nil {
		return wrapSystemError(err)
	}
	invalidateDashboard(ctx)
	return nil
}

// invalidateDashboard 帐本变更后清除仪表盘缓存
func invalidateDashboard(ctx context.Context) {
	if !cache.Enabled() {
		return
	}
	if err := cache.Del(ctx, constants.CacheKeyDashboard); err != nil {
		logger.Warnw("dashboard_cache_invalidate_failed", "error", err)
	}
}

const partnerCodeLength = 8

func generatePartnerCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	var builder strings.Builder
	builder.Grow(partnerCodeLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < partnerCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(alphabet[n.Int64()])
	}
	return builder.String(), nil
}

// generateSerialNo 生成业务编号，如 BK-1A2B3C4D5E6F
func generateSerialNo(prefix string) string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return prefix + "-" + raw[:16]
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
