package main

import (
	"flag"
	"log"
	"strings"

	"github.com/osetrov/messenger/pkg/store"
)

func main() {
	hosts := flag.String("hosts", "localhost:9042", "comma-separated scylla hosts")
	keyspace := flag.String("keyspace", "messenger", "keyspace to drop tables from")
	flag.Parse()

	session, err := store.NewSession(strings.Split(*hosts, ","), *keyspace)
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	for _, table := range []string{"messages", "messages_by_chat", "notifications"} {
		log.Printf("Dropping table %s...", table)
		if err := session.Query("DROP TABLE IF EXISTS " + table).Exec(); err != nil {
			log.Fatalf("Failed to drop table: %v", err)
		}
	}
	log.Println("Tables dropped successfully.")
}
