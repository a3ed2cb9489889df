package main

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/cpuprof/internal/nodetree"
)

type (
	// CallTreesKafkaMessage is representing the struct we send to Kafka to insert call trees.
	CallTreesKafkaMessage struct {
		CallTrees      []*nodetree.Node `json:"call_trees"`
		Environment    string           `json:"environment,omitempty"`
		ID             string           `json:"profile_id"`
		OrganizationID uint64           `json:"organization_id"`
		ProjectID      uint64           `json:"project_id"`
		Received       int64            `json:"received"`
	}

	// FunctionsKafkaMessage is representing the struct we send to Kafka to insert function self times.
	FunctionsKafkaMessage struct {
		Environment    string                      `json:"environment,omitempty"`
		Functions      []nodetree.CallTreeFunction `json:"functions"`
		ID             string                      `json:"profile_id"`
		OrganizationID uint64                      `json:"organization_id"`
		ProjectID      uint64                      `json:"project_id"`
		Received       int64                       `json:"received"`
	}
)

func buildCallTreesKafkaMessage(p storedProfile, environment string, callTrees []*nodetree.Node) CallTreesKafkaMessage {
	return CallTreesKafkaMessage{
		CallTrees:      callTrees,
		Environment:    environment,
		ID:             p.ProfileID,
		OrganizationID: p.OrganizationID,
		ProjectID:      p.ProjectID,
		Received:       p.Received.Unix(),
	}
}

func buildFunctionsKafkaMessage(p storedProfile, environment string, functions []nodetree.CallTreeFunction) FunctionsKafkaMessage {
	return FunctionsKafkaMessage{
		Environment:    environment,
		Functions:      functions,
		ID:             p.ProfileID,
		OrganizationID: p.OrganizationID,
		ProjectID:      p.ProjectID,
		Received:       p.Received.Unix(),
	}
}

// publish writes the call trees and functions of a profile, keyed by
// profile id so messages of a profile land on the same partition.
func (e *environment) publish(ctx context.Context, p storedProfile, callTrees []*nodetree.Node, functions []nodetree.CallTreeFunction) error {
	if e.profilingWriter == nil {
		return nil
	}
	callTreesValue, err := jsoniter.Marshal(buildCallTreesKafkaMessage(p, e.config.Environment, callTrees))
	if err != nil {
		return err
	}
	functionsValue, err := jsoniter.Marshal(buildFunctionsKafkaMessage(p, e.config.Environment, functions))
	if err != nil {
		return err
	}
	return e.profilingWriter.WriteMessages(ctx,
		kafka.Message{
			Key:   []byte(p.ProfileID),
			Topic: e.config.CallTreesKafkaTopic,
			Value: callTreesValue,
		},
		kafka.Message{
			Key:   []byte(p.ProfileID),
			Topic: e.config.FunctionsKafkaTopic,
			Value: functionsValue,
		},
	)
}
