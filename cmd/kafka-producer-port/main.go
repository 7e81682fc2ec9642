// Package main starts the Kafka producer port.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/drblury/kafkaport"
)

func main() {
	log.SetPrefix("[kafka-producer-port] ")
	cfg, err := kafkaport.ParseConfig(kafkaport.VariantProducer, flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := kafkaport.Run(ctx, cfg, kafkaport.Stdio{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	stop()
	os.Exit(code)
}
