package main

import (
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/osetrov/messenger/pkg/auth"
	"github.com/osetrov/messenger/pkg/config"
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

	a := &api{tokens: auth.New(cfg.JWTSecret)}

	if cfg.Standalone {
		ps := presence.NewMemory(cfg.PresenceTTL)
		defer ps.Close()
		a.presence = ps
		a.messages = store.NewMemoryMessages(node)
		a.notifications = store.NewMemoryNotifications()
	} else {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.presence = presence.NewRedis(rdb, cfg.PresenceTTL)

		session, err := store.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
		if err != nil {
			log.Fatalf("Failed to connect to ScyllaDB: %v", err)
		}
		defer session.Close()
		a.messages = store.NewScyllaMessages(session, node)
		a.notifications = store.NewScyllaNotifications(session)
	}

	log.Printf("API Service Starting on %s...", cfg.APIAddr)
	if err := http.ListenAndServe(cfg.APIAddr, a.routes()); err != nil {
		log.Fatal(err)
	}
}
