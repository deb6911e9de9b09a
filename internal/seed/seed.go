package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
	checkoutdomain "github.com/smallbiznis/recova/internal/checkout/domain"
	settingsdomain "github.com/smallbiznis/recova/internal/settings/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const demoShop = "demo.myshopify.com"

// EnsureDemoShop seeds a demo shop with enabled call settings and a few
// checkouts so a fresh install has something on the dashboard. Safe to
// run repeatedly.
func EnsureDemoShop(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureDemoSettingsTx(ctx, tx, node); err != nil {
			return err
		}
		return ensureDemoCheckoutsTx(ctx, tx, node)
	})
}

func ensureDemoSettingsTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var existing settingsdomain.CallSettings
	err := tx.WithContext(ctx).Where("shop = ?", demoShop).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	settings := settingsdomain.CallSettings{
		ID:              node.Generate(),
		Shop:            demoShop,
		Enabled:         true,
		DelayMinutes:    30,
		MaxAttempts:     2,
		RetryMinutes:    180,
		MinOrderValue:   0,
		Currency:        "USD",
		CallWindowStart: "09:00",
		CallWindowEnd:   "19:00",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return tx.WithContext(ctx).Create(&settings).Error
}

func ensureDemoCheckoutsTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	type sample struct {
		CheckoutID  string
		Status      checkoutdomain.Status
		Value       float64
		Email       string
		Phone       string
		AbandonedAg time.Duration
	}

	samples := []sample{
		{"demo-1001", checkoutdomain.StatusAbandoned, 89.90, "ana@example.com", "+15550100101", 2 * time.Hour},
		{"demo-1002", checkoutdomain.StatusAbandoned, 45.00, "ben@example.com", "+15550100102", 45 * time.Minute},
		{"demo-1003", checkoutdomain.StatusOpen, 230.50, "carla@example.com", "", 0},
		{"demo-1004", checkoutdomain.StatusConverted, 120.00, "dan@example.com", "+15550100104", 0},
	}

	now := time.Now().UTC()
	for _, s := range samples {
		var existing checkoutdomain.Checkout
		err := tx.WithContext(ctx).
			Where("shop = ? AND checkout_id = ?", demoShop, s.CheckoutID).
			First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		row := checkoutdomain.Checkout{
			ID:         node.Generate(),
			Shop:       demoShop,
			CheckoutID: s.CheckoutID,
			Status:     s.Status,
			Value:      s.Value,
			Currency:   "USD",
			Email:      s.Email,
			Phone:      s.Phone,
			ItemsJSON:  datatypes.JSON(`[{"title":"Demo Item","quantity":1}]`),
			CreatedAt:  now.Add(-24 * time.Hour),
			UpdatedAt:  now.Add(-s.AbandonedAg),
		}
		if s.Status == checkoutdomain.StatusAbandoned {
			at := now.Add(-s.AbandonedAg)
			row.AbandonedAt = &at
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return err
		}
	}

	// A finished attempt on the oldest checkout so the call log is not empty.
	var job calljobdomain.CallJob
	err := tx.WithContext(ctx).
		Where("shop = ? AND checkout_id = ?", demoShop, "demo-1001").
		First(&job).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	job = calljobdomain.CallJob{
		ID:           node.Generate(),
		Shop:         demoShop,
		CheckoutID:   "demo-1001",
		Phone:        "+15550100101",
		Status:       calljobdomain.StatusCompleted,
		Attempts:     1,
		ScheduledFor: now.Add(-90 * time.Minute),
		Outcome:      "no_answer",
		EndedReason:  "no_answer",
		CreatedAt:    now.Add(-2 * time.Hour),
		UpdatedAt:    now.Add(-90 * time.Minute),
	}
	return tx.WithContext(ctx).Create(&job).Error
}
