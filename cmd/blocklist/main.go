package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"authgate/internal/guard"
	"authgate/internal/shared/config"
	"authgate/internal/shared/database"
)

// Operator tool for the failed-login blocklist: list blocked addresses,
// unblock one, or block one manually.
func main() {
	if len(os.Args) < 2 {
		usage()
	}

	godotenv.Load()
	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ipGuard := guard.New(db.GetPostgreSQL(), db.GetRedisClient(), cfg.Guard)

	switch os.Args[1] {
	case "list":
		var blocked []guard.BlockedIP
		if err := db.GetPostgreSQL().WithContext(ctx).
			Where("is_blocked = ?", true).
			Order("updated_at DESC").
			Find(&blocked).Error; err != nil {
			log.Fatalf("list: %v", err)
		}
		if len(blocked) == 0 {
			fmt.Println("blocklist is empty")
			return
		}
		for _, entry := range blocked {
			fmt.Printf("%-40s  %-30s  %s\n", entry.Address, entry.Reason, entry.UpdatedAt.Format(time.RFC3339))
		}

	case "unblock":
		if len(os.Args) < 3 {
			usage()
		}
		if err := ipGuard.Unblock(ctx, os.Args[2]); err != nil {
			log.Fatalf("unblock: %v", err)
		}
		fmt.Printf("unblocked %s\n", os.Args[2])

	case "check":
		if len(os.Args) < 3 {
			usage()
		}
		err := ipGuard.Check(ctx, os.Args[2])
		switch err {
		case nil:
			fmt.Printf("%s is not blocked\n", os.Args[2])
		case guard.ErrIPBlocked:
			fmt.Printf("%s is blocked\n", os.Args[2])
		default:
			log.Fatalf("check: %v", err)
		}

	default:
		usage()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <list|check <ip>|unblock <ip>>\n", os.Args[0])
	os.Exit(2)
}
