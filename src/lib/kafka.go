package lib

import (
	"encoding/json"
	"errors"
	"log"
	"os"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

var ErrNoBroker = errors.New("no kafka broker configured")

func KafkaProduceMessage(clientId string, topic string, payload map[string]any) error {
	broker := os.Getenv("KAFKA_BROKER")
	if broker == "" {
		return ErrNoBroker
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": broker,
		"client.id":         clientId,
		"acks":              "all",
	})
	if err != nil {
		log.Printf("Error on producer: %s\n", err.Error())
		return err
	}
	defer p.Close()

	value, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling payload: %s\n", err.Error())
		return err
	}

	err = p.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          value,
	}, nil)
	if err != nil {
		log.Printf("Error producing message to [%s]: %s\n", topic, err.Error())
		return err
	}
	p.Flush(5000)
	return nil
}
