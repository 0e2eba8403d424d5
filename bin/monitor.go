package main

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssnssubscriptions"
	"github.com/aws/jsii-runtime-go"
)

// Monitoring resources
func createMonitoringResources(stack awscdk.Stack, alarmEmail string) awssns.ITopic {
	topic := awssns.NewTopic(stack, jsii.String("TriggerAlarmTopic"), &awssns.TopicProps{
		TopicName:   jsii.String("automl-trigger-alarms"),
		DisplayName: jsii.String("AutoML Trigger Alarms"),
	})

	if alarmEmail != "" {
		topic.AddSubscription(awssnssubscriptions.NewEmailSubscription(jsii.String(alarmEmail), nil))
	}

	return topic
}
