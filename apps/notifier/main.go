package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/osetrov/messenger/pkg/auth"
	"github.com/osetrov/messenger/pkg/config"
	"github.com/osetrov/messenger/pkg/directory"
	"github.com/osetrov/messenger/pkg/email"
	"github.com/osetrov/messenger/pkg/presence"
	"github.com/osetrov/messenger/pkg/snowflake"
	"github.com/osetrov/messenger/pkg/store"
)

func main() {
	cfg := config.Load()

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		log.Fatalf("Failed to initialize snowflake node: %v", err)
	}

	tokens := auth.New(cfg.JWTSecret)
	dir := directory.NewClient(cfg.DirectoryURL, tokens)

	var messages store.Messages
	var notifications store.Notifications
	var checkpoint store.Checkpoint
	var ps presence.Store

	if cfg.Standalone {
		memPresence := presence.NewMemory(cfg.PresenceTTL)
		defer memPresence.Close()
		ps = memPresence
		messages = store.NewMemoryMessages(node)
		notifications = store.NewMemoryNotifications()
		checkpoint = store.NewMemoryCheckpoint(time.Time{})
	} else {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ps = presence.NewRedis(rdb, cfg.PresenceTTL)
		checkpoint = store.NewRedisCheckpoint(rdb)

		session, err := store.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
		if err != nil {
			log.Fatalf("Failed to connect to ScyllaDB: %v", err)
		}
		defer session.Close()
		messages = store.NewScyllaMessages(session, node)
		notifications = store.NewScyllaNotifications(session)
	}

	reconciler := NewReconciler(messages, notifications, checkpoint, dir, ps,
		email.LogSender{}, cfg.PollInterval, cfg.EmailDelay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Notifier Service Starting (poll %s, email delay %s)...", cfg.PollInterval, cfg.EmailDelay)
	reconciler.Run(ctx)
}
