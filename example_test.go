package cluster_test

import (
	"log"
	"time"

	"github.com/gomodule/redigo/redis"

	cluster "github.com/mna/rcluster"
)

// Create a Router and call commands on it.
func Example() {
	cfg, err := cluster.NewClusterConfig([]string{"127.0.0.1:7000", "127.0.0.1:7001", "127.0.0.1:7002"})
	if err != nil {
		log.Fatalf("NewClusterConfig failed: %v", err)
	}
	cfg.NodeOptions.ConnectTimeout = 5 * time.Second

	r, err := cluster.New(cfg)
	if err != nil {
		log.Fatalf("New failed: %v", err)
	}
	defer r.Close()

	s, err := redis.String(r.Call("GET", "some-key"))
	if err != nil {
		log.Fatalf("GET failed: %v", err)
	}
	log.Println(s)

	if _, err := r.Call("SET", "some-key", 2); err != nil {
		log.Fatalf("SET failed: %v", err)
	}
}

// Scan the whole keyspace across every shard.
func ExampleRouter_Scan() {
	cfg, err := cluster.NewClusterConfig([]string{"127.0.0.1:7000", "127.0.0.1:7001", "127.0.0.1:7002"})
	if err != nil {
		log.Fatalf("NewClusterConfig failed: %v", err)
	}

	r, err := cluster.New(cfg)
	if err != nil {
		log.Fatalf("New failed: %v", err)
	}
	defer r.Close()

	it, err := r.Scan("MATCH", "user:*")
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
	for {
		keys, more, err := it.Next()
		if err != nil {
			log.Fatalf("Next failed: %v", err)
		}
		for _, k := range keys {
			log.Println(k)
		}
		if !more {
			break
		}
	}
}

// Use the Router through a classic redigo redis.Conn, ignoring
// cluster redirections by letting the Router follow them internally.
func ExampleAsConn() {
	cfg, err := cluster.NewClusterConfig([]string{"127.0.0.1:7000"})
	if err != nil {
		log.Fatalf("NewClusterConfig failed: %v", err)
	}

	r, err := cluster.New(cfg)
	if err != nil {
		log.Fatalf("New failed: %v", err)
	}
	defer r.Close()

	conn := cluster.AsConn(r)
	defer conn.Close()

	if _, err := conn.Do("SET", "some-key", 2); err != nil {
		log.Fatalf("SET failed: %v", err)
	}
}
