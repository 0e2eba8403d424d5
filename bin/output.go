package main

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"

	"github.com/30Piraten/automl-trigger/construct"
)

func createStackOutputs(resources *TriggerResources, trigger *construct.TriggerConstruct) {
	stack := resources.stack

	awscdk.NewCfnOutput(stack, jsii.String("TriggerRoleArnOutput"), &awscdk.CfnOutputProps{
		Value: trigger.Role.RoleArn(),
	})

	awscdk.NewCfnOutput(stack, jsii.String("TriggerFunctionNameOutput"), &awscdk.CfnOutputProps{
		Value: trigger.Lambda.FunctionName(),
	})

	awscdk.NewCfnOutput(stack, jsii.String("ResourceBucketNameOutput"), &awscdk.CfnOutputProps{
		Value: resources.resourceBucket.BucketName(),
	})

	awscdk.NewCfnOutput(stack, jsii.String("StateMachineArnOutput"), &awscdk.CfnOutputProps{
		Value: resources.stateMachine.StateMachineArn(),
	})
}
