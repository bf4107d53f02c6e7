package main

import (
	"flag"
	"log"
	"strings"

	"github.com/gocql/gocql"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id bigint,
		chat_id text,
		sender_id text,
		content text,
		timestamp timestamp,
		is_edited boolean,
		is_deleted boolean,
		token bigint,
		PRIMARY KEY (id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages_by_chat (
		chat_id text,
		id bigint,
		sender_id text,
		content text,
		timestamp timestamp,
		is_edited boolean,
		is_deleted boolean,
		PRIMARY KEY (chat_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		message_id bigint,
		recipient_id text,
		id text,
		chat_id text,
		sender_id text,
		sent_timestamp timestamp,
		is_read boolean,
		read_timestamp timestamp,
		is_email_sent boolean,
		email_sent_timestamp timestamp,
		PRIMARY KEY (message_id, recipient_id)
	)`,
}

func main() {
	hosts := flag.String("hosts", "localhost", "comma-separated scylla hosts")
	keyspace := flag.String("keyspace", "messenger", "keyspace to create")
	flag.Parse()

	cluster := gocql.NewCluster(strings.Split(*hosts, ",")...)
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}

	err = session.Query(`CREATE KEYSPACE IF NOT EXISTS ` + *keyspace +
		` WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}`).Exec()
	if err != nil {
		log.Fatal(err)
	}
	session.Close()

	cluster.Keyspace = *keyspace
	session, err = cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	for _, stmt := range statements {
		if err := session.Query(stmt).Exec(); err != nil {
			log.Fatal(err)
		}
	}

	log.Printf("keyspace %s ready", *keyspace)
}
