package main

import (
	"context"
	"errors"
	"time"

	"github.com/zhiyin-next/internal/config"
	"github.com/zhiyin-next/internal/constants"
	"github.com/zhiyin-next/internal/logger"
	"github.com/zhiyin-next/internal/models"
	"github.com/zhiyin-next/internal/provider"
	"github.com/zhiyin-next/internal/service"

	"github.com/joho/godotenv"
)

type demoPartner struct {
	code       string
	name       string
	phone      string
	preference string
	completed  int
}

// 本地演示数据：两位大使，各自带若干已完成订房
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	defer logger.Sync()
	stdLog := logger.StdLogger()

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	cfg.Queue.Enabled = false
	c := provider.NewContainer(cfg)
	ctx := context.Background()

	partners := []demoPartner{
		{code: "DEMO0001", name: "示范大使甲", phone: "0912000001", preference: constants.CommissionPreferenceCash, completed: 2},
		{code: "DEMO0002", name: "示范大使乙", phone: "0912000002", preference: constants.CommissionPreferenceAccommodation, completed: 5},
	}
	base := time.Now().AddDate(0, -2, 0)
	for _, p := range partners {
		_, err := c.PartnerService.CreatePartner(ctx, service.CreatePartnerInput{
			PartnerCode:          p.code,
			Name:                 p.name,
			Phone:                p.phone,
			CommissionPreference: p.preference,
			Notes:                "seed",
		})
		if errors.Is(err, service.ErrPartnerCodeExists) {
			stdLog.Printf("Partner already exists: %s", p.code)
			continue
		}
		if err != nil {
			stdLog.Fatalf("Failed to create partner %s: %v", p.code, err)
		}

		for i := 0; i < p.completed; i++ {
			checkin := base.AddDate(0, 0, i*3)
			booking, err := c.BookingService.CreateBooking(ctx, service.CreateBookingInput{
				PartnerCode:   p.code,
				GuestName:     "示范房客",
				GuestPhone:    "0987000000",
				CheckinDate:   checkin,
				CheckoutDate:  checkin.AddDate(0, 0, 2),
				RoomType:      "double",
				RoomPrice:     models.NewMoneyFromInt(3200),
				PaymentStatus: constants.PaymentStatusPaid,
				Notes:         "seed",
			})
			if err != nil {
				stdLog.Fatalf("Failed to create booking for %s: %v", p.code, err)
			}
			if _, err := c.BookingService.ConfirmCompletion(ctx, booking.ID, "seed"); err != nil {
				stdLog.Fatalf("Failed to complete booking %s: %v", booking.BookingNo, err)
			}
		}
		stdLog.Printf("Seeded partner %s with %d completed bookings", p.code, p.completed)
	}
}
