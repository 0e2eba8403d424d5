package main

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsstepfunctions"
)

type TriggerResources struct {
	stack          awscdk.Stack
	resourceBucket awss3.IBucket
	stateMachine   awsstepfunctions.IStateMachine
	alarmTopic     awssns.ITopic
}
