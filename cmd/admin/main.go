package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"civictrack/backend/internal/audit"
	"civictrack/backend/internal/auth"
	"civictrack/backend/internal/complaint"
	"civictrack/backend/internal/config"
	"civictrack/backend/internal/localization"
	"civictrack/backend/internal/models"
	"civictrack/backend/internal/notification"
	"civictrack/backend/internal/sla"
	"civictrack/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// operator is the identity admin commands act as.
var operator = models.Identity{UserID: "admin-cli", Role: models.RoleAdmin}

func usage() {
	fmt.Println("Usage: admin <command> [args]")
	fmt.Println("  issue-token <user_id> <role> [ttl]")
	fmt.Println("  sla-sweep")
	fmt.Println("  purge-notifications")
	fmt.Println("  assign <complaint_id> <officer_id>")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.Load(os.Getenv("CIVICTRACK_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	command := os.Args[1]

	switch command {
	case "issue-token":
		if len(os.Args) < 4 {
			fmt.Println("Usage: admin issue-token <user_id> <role> [ttl]")
			os.Exit(1)
		}
		token, err := issueToken(cfg, os.Args[2], os.Args[3], os.Args[4:])
		if err != nil {
			log.Fatalf("Error issuing token: %v", err)
		}
		fmt.Println(token)
	case "sla-sweep":
		store := openStorage(ctx, cfg)
		res, err := newScanner(cfg, store, logger).Sweep(ctx)
		if err != nil {
			log.Fatalf("Error running SLA sweep: %v", err)
		}
		if res.Skipped {
			fmt.Println("Another SLA sweep is running; nothing done.")
			return
		}
		fmt.Printf("SLA sweep done: scanned=%d notified=%d failed=%d\n", res.Scanned, res.Notified, res.Failed)
	case "purge-notifications":
		store := openStorage(ctx, cfg)
		n, err := newNotifications(cfg, store, logger).Purge(ctx, cfg.Notifications.Retention)
		if err != nil {
			log.Fatalf("Error purging notifications: %v", err)
		}
		fmt.Printf("Purged %d read notifications older than %s.\n", n, cfg.Notifications.Retention)
	case "assign":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin assign <complaint_id> <officer_id>")
			os.Exit(1)
		}
		store := openStorage(ctx, cfg)
		svc := complaint.NewService(store, newNotifications(cfg, store, logger), audit.NewLog(cfg.Audit.Capacity), logger, complaint.Options{
			SLAWindow:    cfg.SLA.DefaultWindow,
			StoreTimeout: cfg.Storage.Timeout,
		})
		c, err := svc.Transition(ctx, operator, os.Args[2], complaint.TransitionInput{
			Status:     string(models.StatusAssigned),
			AssignedTo: os.Args[3],
			Reason:     "assigned from admin CLI",
		})
		if err != nil {
			log.Fatalf("Error assigning complaint: %v", err)
		}
		fmt.Printf("Complaint %s assigned to %s.\n", c.ID, os.Args[3])
	default:
		fmt.Println("Unknown command")
		usage()
	}
}

func issueToken(cfg *config.Config, userID, roleName string, rest []string) (string, error) {
	role, err := models.ParseRole(roleName)
	if err != nil {
		return "", err
	}
	var ttl time.Duration
	if len(rest) > 0 {
		if ttl, err = time.ParseDuration(rest[0]); err != nil {
			return "", fmt.Errorf("invalid ttl %q: %w", rest[0], err)
		}
	}
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	return issuer.Issue(models.Identity{UserID: userID, Role: role}, ttl)
}

// openStorage connects to PostgreSQL. The admin CLI has no use for the
// in-memory driver: its state would vanish on exit.
func openStorage(ctx context.Context, cfg *config.Config) storage.Storage {
	if cfg.Storage.Driver != "postgres" {
		log.Fatalf("admin commands need storage.driver=postgres, got %q", cfg.Storage.Driver)
	}
	db, err := storage.Connect(ctx, cfg.Database.DSN, cfg.Database.LogSQL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	return storage.NewStorageService(db)
}

// newNotifications stores notifications only; live delivery is left to the
// server process.
func newNotifications(cfg *config.Config, store storage.Storage, logger *zap.Logger) *notification.Service {
	localizer, err := localization.NewLocalizer()
	if err != nil {
		log.Fatalf("failed to load translations: %v", err)
	}
	svc := notification.NewService(store, localizer, logger)
	svc.SetDefaultLanguage(cfg.Localization.DefaultLanguage)
	svc.SetStoreTimeout(cfg.Storage.Timeout)
	return svc
}

func newScanner(cfg *config.Config, store storage.Storage, logger *zap.Logger) *sla.Scanner {
	// Share the server's sweep lock so a manual sweep never overlaps a scheduled one.
	var locker sla.Locker
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		locker = sla.NewRedisLocker(rdb, sla.DefaultLockKey, cfg.SLA.LockTTL, logger)
	}
	return sla.NewScanner(store, newNotifications(cfg, store, logger), locker, logger, sla.Options{
		ApproachingWindow:     cfg.SLA.ApproachingWindow,
		NotifyCitizenOnBreach: cfg.SLA.NotifyCitizenOnBreach,
		EscalationRecipients:  cfg.SLA.EscalationRecipients,
	})
}
