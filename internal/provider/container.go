package provider

import (
	"github.com/zhiyin-next/internal/cache"
	"github.com/zhiyin-next/internal/config"
	"github.com/zhiyin-next/internal/logger"
	"github.com/zhiyin-next/internal/models"
	"github.com/zhiyin-next/internal/queue"
	"github.com/zhiyin-next/internal/repository"
	"github.com/zhiyin-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	AdminRepo     repository.AdminRepository
	PartnerRepo   repository.PartnerRepository
	BookingRepo   repository.BookingRepository
	PayoutRepo    repository.PayoutRepository
	PointsRepo    repository.PointsRepository
	DashboardRepo repository.DashboardRepository

	// Services
	TierPolicy        service.TierPolicy
	LedgerLocker      service.LedgerLocker
	AuthService       *service.AuthService
	PartnerService    *service.PartnerService
	CommissionService *service.CommissionService
	BookingService    *service.BookingService
	PayoutService     *service.PayoutService
	PointsService     *service.PointsService
	DashboardService  *service.DashboardService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.PartnerRepo = repository.NewPartnerRepository(db)
	c.BookingRepo = repository.NewBookingRepository(db)
	c.PayoutRepo = repository.NewPayoutRepository(db)
	c.PointsRepo = repository.NewPointsRepository(db)
	c.DashboardRepo = repository.NewDashboardRepository(db)
}

func (c *Container) initServices() {
	policy, err := service.TierPolicyFromConfig(c.Config.Ambassador)
	if err != nil {
		logger.Errorw("provider_init_tier_policy_failed", "error", err)
		panic(err)
	}
	c.TierPolicy = policy
	c.LedgerLocker = service.NewLedgerLocker(c.Config.Ambassador.LockTimeout())

	c.AuthService = service.NewAuthService(c.Config, c.AdminRepo)
	c.PartnerService = service.NewPartnerService(c.PartnerRepo, policy, c.LedgerLocker)
	c.CommissionService = service.NewCommissionService(c.PartnerRepo, c.BookingRepo, c.PayoutRepo, policy)
	c.BookingService = service.NewBookingService(c.BookingRepo, c.PartnerRepo, c.CommissionService, c.LedgerLocker)
	c.PayoutService = service.NewPayoutService(c.PartnerRepo, c.BookingRepo, c.PayoutRepo, c.PointsRepo, c.LedgerLocker)
	c.PointsService = service.NewPointsService(c.PartnerRepo, c.BookingRepo, c.PointsRepo, c.LedgerLocker)
	c.DashboardService = service.NewDashboardService(c.DashboardRepo, c.PartnerRepo, policy, c.Config.Ambassador.DashboardCacheTTL())

	logger.Infow("provider_services_ready",
		"tiers", len(policy.Tiers),
		"redis_enabled", cache.Enabled(),
		"queue_enabled", c.QueueClient != nil,
	)
}
