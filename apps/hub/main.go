package main

import (
	"context"
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/osetrov/messenger/pkg/auth"
	"github.com/osetrov/messenger/pkg/bus"
	"github.com/osetrov/messenger/pkg/config"
	"github.com/osetrov/messenger/pkg/directory"
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

	var ps presence.Store
	var messages store.Messages
	var newBus func(bus.Handler) bus.Bus
	var memPresence *presence.Memory

	if cfg.Standalone {
		memPresence = presence.NewMemory(cfg.PresenceTTL)
		ps = memPresence
		messages = store.NewMemoryMessages(node)
		newBus = func(h bus.Handler) bus.Bus { return bus.NewLoopback(h) }
	} else {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ps = presence.NewRedis(rdb, cfg.PresenceTTL)

		session, err := store.NewSession(cfg.ScyllaHosts, cfg.Keyspace)
		if err != nil {
			log.Fatalf("Failed to connect to ScyllaDB: %v", err)
		}
		messages = store.NewScyllaMessages(session, node)

		newBus = func(h bus.Handler) bus.Bus { return bus.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, h) }
	}

	hub := NewHub(ps, messages, dir, newBus)
	defer hub.Close()

	if memPresence != nil {
		memPresence.OnOffline(hub.NotifyExpired)
	} else {
		// Redis expires presence keys server-side; poll so TTL-driven offline
		// transitions are still broadcast.
		go hub.WatchPresence(context.Background(), cfg.PresenceTTL/4)
	}

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, ps, tokens, w, r)
	})

	log.Printf("Hub Service Starting on %s...", cfg.HubAddr)
	if err := http.ListenAndServe(cfg.HubAddr, nil); err != nil {
		log.Fatal(err)
	}
}
